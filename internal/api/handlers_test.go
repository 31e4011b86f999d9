// LearnLoop - E-Learning Platform Authentication Core
// Copyright 2026 LearnLoop Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/learnloop/learnloop

package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/learnloop/learnloop/internal/audit"
	"github.com/learnloop/learnloop/internal/csrf"
	"github.com/learnloop/learnloop/internal/password"
	"github.com/learnloop/learnloop/internal/ratelimit"
	"github.com/learnloop/learnloop/internal/session"
	"github.com/learnloop/learnloop/internal/token"
	"github.com/learnloop/learnloop/internal/users"
)

const (
	testAccessSecret  = "test-access-secret-0123456789abcdef"
	testRefreshSecret = "test-refresh-secret-0123456789abcdef"
	testCSRFSecret    = "test-csrf-secret-0123456789abcdefgh"

	alicePassword = "Sup3r-Secret!"
)

type testEnv struct {
	server     *Server
	router     http.Handler
	users      *users.MemoryDirectory
	auditStore *audit.MemoryStore
	authority  *token.Authority
	alice      *users.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	hasher := password.NewHasher(4) // low cost for test speed
	hash, err := hasher.Hash(alicePassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	dir := users.NewMemoryDirectory()
	alice := dir.Add(users.User{
		Name:         "Alice",
		Email:        "alice@example.com",
		PasswordHash: hash,
		Role:         token.RoleStudent,
	})
	dir.Add(users.User{
		Name:         "Ivan",
		Email:        "ivan@example.com",
		PasswordHash: hash,
		Role:         token.RoleInstructor,
	})

	authority, err := token.NewAuthority(token.Config{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		Issuer:        "learnloop-test",
	})
	if err != nil {
		t.Fatalf("new authority: %v", err)
	}

	auditStore := audit.NewMemoryStore()
	auditLog := audit.NewLogger(auditStore, audit.Config{BufferCapacity: 1, FlushInterval: time.Hour})
	t.Cleanup(auditLog.Close)

	guard, err := csrf.NewGuard(testCSRFSecret, 24*time.Hour)
	if err != nil {
		t.Fatalf("new csrf guard: %v", err)
	}
	csrfMW := csrf.NewMiddleware(guard, csrf.MiddlewareConfig{CookieSecure: false})

	server := NewServer(Config{
		Users:        dir,
		Hasher:       hasher,
		Policy:       password.DefaultStrengthPolicy(),
		Authority:    authority,
		Sessions:     session.NewManager(session.NewMemoryStore(), auditLog, time.Hour),
		CSRF:         csrfMW,
		Audit:        auditLog,
		LoginLimiter: ratelimit.NewLimiter(ratelimit.LoginConfig()),
	})

	return &testEnv{
		server:     server,
		router:     server.Router(RouterOptions{AuthRequestsPerMinute: 1000}),
		users:      dir,
		auditStore: auditStore,
		authority:  authority,
		alice:      alice,
	}
}

func (env *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) login(t *testing.T, email, pass string) *httptest.ResponseRecorder {
	t.Helper()
	body := `{"email":"` + email + `","password":"` + pass + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return env.do(req)
}

func cookieValue(rec *httptest.ResponseRecorder, name string) string {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func TestLoginSuccess(t *testing.T) {
	env := newTestEnv(t)

	rec := env.login(t, "alice@example.com", alicePassword)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	access := cookieValue(rec, accessCookieName)
	refresh := cookieValue(rec, refreshCookieName)
	if access == "" || refresh == "" {
		t.Fatal("expected both auth cookies to be set")
	}

	claims, err := env.authority.VerifyAccess(access)
	if err != nil {
		t.Fatalf("access cookie does not verify: %v", err)
	}
	if claims.Role != token.RoleStudent || !claims.IsStudent || claims.IsInstructor || claims.IsAdmin {
		t.Errorf("unexpected role/flags: %+v", claims)
	}

	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.User.Email != "alice@example.com" || resp.AccessToken == "" {
		t.Errorf("unexpected body: %+v", resp)
	}
}

func TestLoginWrongPasswordGeneric401(t *testing.T) {
	env := newTestEnv(t)

	wrong := env.login(t, "alice@example.com", "wrong-password")
	missing := env.login(t, "nobody@example.com", "wrong-password")
	if wrong.Code != http.StatusUnauthorized || missing.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", wrong.Code, missing.Code)
	}
	// The body must not distinguish unknown email from bad password.
	if wrong.Body.String() != missing.Body.String() {
		t.Error("401 bodies differ between unknown email and wrong password")
	}
}

func TestLoginRateLimitSixthAttempt429(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 5; i++ {
		rec := env.login(t, "alice@example.com", "wrong-password")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, rec.Code)
		}
	}

	rec := env.login(t, "alice@example.com", "wrong-password")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("6th attempt: expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.RetryAfter != 1800 {
		t.Errorf("expected retryAfter 1800, got %d", body.RetryAfter)
	}

	// Even the correct password is blocked now.
	rec = env.login(t, "alice@example.com", alicePassword)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 during block, got %d", rec.Code)
	}
}

func TestLoginResetsLimiterOnSuccess(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 4; i++ {
		env.login(t, "alice@example.com", "wrong-password")
	}
	if rec := env.login(t, "alice@example.com", alicePassword); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 under the limit, got %d", rec.Code)
	}

	// History is cleared; five fresh failures are needed to block again.
	for i := 0; i < 5; i++ {
		rec := env.login(t, "alice@example.com", "wrong-password")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d after reset: expected 401, got %d", i+1, rec.Code)
		}
	}
}

func TestRefreshRotatesTokens(t *testing.T) {
	env := newTestEnv(t)

	loginRec := env.login(t, "alice@example.com", alicePassword)
	refresh := cookieValue(loginRec, refreshCookieName)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: refresh})
	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	newRefresh := cookieValue(rec, refreshCookieName)
	if newRefresh == "" || newRefresh == refresh {
		t.Fatal("expected a rotated refresh cookie")
	}

	oldClaims, _ := env.authority.VerifyRefresh(refresh)
	newClaims, err := env.authority.VerifyRefresh(newRefresh)
	if err != nil {
		t.Fatalf("new refresh token does not verify: %v", err)
	}
	if newClaims.TokenVersion != oldClaims.TokenVersion+1 {
		t.Errorf("expected version %d, got %d", oldClaims.TokenVersion+1, newClaims.TokenVersion)
	}
}

func TestRefreshReuseKillsAllTokens(t *testing.T) {
	env := newTestEnv(t)

	loginRec := env.login(t, "alice@example.com", alicePassword)
	original := cookieValue(loginRec, refreshCookieName)

	// Rotate once: original is now stale.
	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: original})
	firstRec := env.do(req)
	if firstRec.Code != http.StatusOK {
		t.Fatalf("first refresh: expected 200, got %d", firstRec.Code)
	}
	rotated := cookieValue(firstRec, refreshCookieName)

	// Replaying the stale token is reuse: 401 and cookies cleared.
	req = httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: original})
	reuseRec := env.do(req)
	if reuseRec.Code != http.StatusUnauthorized {
		t.Fatalf("reuse: expected 401, got %d", reuseRec.Code)
	}

	// The legitimately rotated token is now dead too.
	req = httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: rotated})
	afterRec := env.do(req)
	if afterRec.Code != http.StatusUnauthorized {
		t.Fatalf("post-reuse refresh: expected 401, got %d", afterRec.Code)
	}

	// And the incident is a critical audit event.
	var found bool
	for _, e := range env.auditStore.Events() {
		if e.Type == audit.EventTokenReuseDetected && e.Level == audit.LevelCritical {
			found = true
		}
	}
	if !found {
		t.Error("no critical token-reuse audit event recorded")
	}
}

func TestSessionsRequireAuth(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/sessions", nil)
	if rec := env.do(req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestSessionsListAndCurrentFlag(t *testing.T) {
	env := newTestEnv(t)

	loginRec := env.login(t, "alice@example.com", alicePassword)
	access := cookieValue(loginRec, accessCookieName)
	refresh := cookieValue(loginRec, refreshCookieName)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/sessions", nil)
	req.AddCookie(&http.Cookie{Name: accessCookieName, Value: access})
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: refresh})
	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Sessions []sessionResponse `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(body.Sessions))
	}
	if !body.Sessions[0].Current {
		t.Error("expected the session to be flagged current")
	}
}

func TestSilentRefreshOnExpiredAccessToken(t *testing.T) {
	env := newTestEnv(t)

	loginRec := env.login(t, "alice@example.com", alicePassword)
	refresh := cookieValue(loginRec, refreshCookieName)

	// An access token that expires immediately.
	shortAuthority, err := token.NewAuthority(token.Config{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		AccessTTL:     time.Nanosecond,
		Issuer:        "learnloop-test",
	})
	if err != nil {
		t.Fatalf("new authority: %v", err)
	}
	expired, err := shortAuthority.IssueAccessToken(env.alice.Identity())
	if err != nil {
		t.Fatalf("issue expired token: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/sessions", nil)
	req.AddCookie(&http.Cookie{Name: accessCookieName, Value: expired})
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: refresh})
	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 via silent refresh, got %d: %s", rec.Code, rec.Body.String())
	}

	// The middleware minted and set a fresh pair.
	if cookieValue(rec, accessCookieName) == "" || cookieValue(rec, refreshCookieName) == "" {
		t.Error("expected refreshed cookies on the response")
	}
}

func TestExpiredAccessWithoutRefresh401(t *testing.T) {
	env := newTestEnv(t)

	shortAuthority, err := token.NewAuthority(token.Config{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		AccessTTL:     time.Nanosecond,
		Issuer:        "learnloop-test",
	})
	if err != nil {
		t.Fatalf("new authority: %v", err)
	}
	expired, err := shortAuthority.IssueAccessToken(env.alice.Identity())
	if err != nil {
		t.Fatalf("issue expired token: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/sessions", nil)
	req.AddCookie(&http.Cookie{Name: accessCookieName, Value: expired})
	if rec := env.do(req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestBearerHeaderFallback(t *testing.T) {
	env := newTestEnv(t)

	loginRec := env.login(t, "alice@example.com", alicePassword)
	var resp loginResponse
	if err := json.Unmarshal(loginRec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	if rec := env.do(req); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with bearer token, got %d", rec.Code)
	}
}

func TestCSRFTokenFetchAndGuard(t *testing.T) {
	env := newTestEnv(t)

	// Fetch a CSRF token.
	csrfRec := env.do(httptest.NewRequest(http.MethodGet, "/api/auth/csrf", nil))
	if csrfRec.Code != http.StatusOK {
		t.Fatalf("csrf fetch: expected 200, got %d", csrfRec.Code)
	}
	var csrfBody struct {
		CSRFToken string `json:"csrfToken"`
	}
	if err := json.Unmarshal(csrfRec.Body.Bytes(), &csrfBody); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	csrfCookie := cookieValue(csrfRec, "csrf_token")
	if csrfCookie == "" || csrfCookie != csrfBody.CSRFToken {
		t.Fatal("expected matching CSRF cookie and body token")
	}

	loginRec := env.login(t, "alice@example.com", alicePassword)
	access := cookieValue(loginRec, accessCookieName)
	refresh := cookieValue(loginRec, refreshCookieName)

	authedRequest := func(withCSRF bool) *http.Request {
		req := httptest.NewRequest(http.MethodDelete, "/api/auth/sessions", nil)
		req.AddCookie(&http.Cookie{Name: accessCookieName, Value: access})
		req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: refresh})
		if withCSRF {
			req.AddCookie(&http.Cookie{Name: "csrf_token", Value: csrfCookie})
			req.Header.Set("X-CSRF-Token", csrfBody.CSRFToken)
		}
		return req
	}

	// State change without the double-submit pair: 403.
	if rec := env.do(authedRequest(false)); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without CSRF pair, got %d", rec.Code)
	}

	// With both copies: allowed.
	if rec := env.do(authedRequest(true)); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with CSRF pair, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCSRFMismatchedCopies403(t *testing.T) {
	env := newTestEnv(t)

	csrfRec := env.do(httptest.NewRequest(http.MethodGet, "/api/auth/csrf", nil))
	tokenA := cookieValue(csrfRec, "csrf_token")
	csrfRec2 := env.do(httptest.NewRequest(http.MethodGet, "/api/auth/csrf", nil))
	tokenB := cookieValue(csrfRec2, "csrf_token")

	loginRec := env.login(t, "alice@example.com", alicePassword)

	req := httptest.NewRequest(http.MethodDelete, "/api/auth/sessions", nil)
	req.AddCookie(&http.Cookie{Name: accessCookieName, Value: cookieValue(loginRec, accessCookieName)})
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: tokenA})
	req.Header.Set("X-CSRF-Token", tokenB)
	if rec := env.do(req); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for mismatched copies, got %d", rec.Code)
	}
}

func TestInvalidateOtherSessions(t *testing.T) {
	env := newTestEnv(t)

	// Two logins = two sessions.
	first := env.login(t, "alice@example.com", alicePassword)
	second := env.login(t, "alice@example.com", alicePassword)

	csrfRec := env.do(httptest.NewRequest(http.MethodGet, "/api/auth/csrf", nil))
	csrfToken := cookieValue(csrfRec, "csrf_token")

	req := httptest.NewRequest(http.MethodDelete, "/api/auth/sessions", nil)
	req.AddCookie(&http.Cookie{Name: accessCookieName, Value: cookieValue(second, accessCookieName)})
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: cookieValue(second, refreshCookieName)})
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: csrfToken})
	req.Header.Set("X-CSRF-Token", csrfToken)
	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["invalidated"] != 1 {
		t.Errorf("expected 1 invalidated, got %d", body["invalidated"])
	}

	// The first session's refresh token no longer works.
	req = httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: cookieValue(first, refreshCookieName)})
	if refreshRec := env.do(req); refreshRec.Code != http.StatusUnauthorized {
		t.Errorf("expected invalidated session refresh to 401, got %d", refreshRec.Code)
	}

	// The current session survives.
	req = httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: cookieValue(second, refreshCookieName)})
	if refreshRec := env.do(req); refreshRec.Code != http.StatusOK {
		t.Errorf("expected current session refresh to 200, got %d", refreshRec.Code)
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)

	loginRec := env.login(t, "alice@example.com", alicePassword)
	access := cookieValue(loginRec, accessCookieName)
	refresh := cookieValue(loginRec, refreshCookieName)

	csrfRec := env.do(httptest.NewRequest(http.MethodGet, "/api/auth/csrf", nil))
	csrfToken := cookieValue(csrfRec, "csrf_token")

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/password", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.AddCookie(&http.Cookie{Name: accessCookieName, Value: access})
		req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: refresh})
		req.AddCookie(&http.Cookie{Name: "csrf_token", Value: csrfToken})
		req.Header.Set("X-CSRF-Token", csrfToken)
		return env.do(req)
	}

	// Wrong current password.
	if rec := post(`{"currentPassword":"nope","newPassword":"N3w-Secret!pass"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong current password, got %d", rec.Code)
	}

	// Weak new password: 400 with every violated rule.
	rec := post(`{"currentPassword":"` + alicePassword + `","newPassword":"short"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for weak password, got %d", rec.Code)
	}
	var weakBody errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &weakBody); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(weakBody.Fields) < 3 {
		t.Errorf("expected multiple violations listed, got %v", weakBody.Fields)
	}

	// Valid change succeeds and the old password stops working.
	if rec := post(`{"currentPassword":"` + alicePassword + `","newPassword":"N3w-Secret!pass"}`); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := env.login(t, "alice@example.com", alicePassword); rec.Code != http.StatusUnauthorized {
		t.Errorf("old password still accepted after change: %d", rec.Code)
	}
	if rec := env.login(t, "alice@example.com", "N3w-Secret!pass"); rec.Code != http.StatusOK {
		t.Errorf("new password rejected after change: %d", rec.Code)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	env := newTestEnv(t)

	loginRec := env.login(t, "alice@example.com", alicePassword)
	refresh := cookieValue(loginRec, refreshCookieName)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: refresh})
	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	// Refresh after logout fails.
	req = httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: refresh})
	if refreshRec := env.do(req); refreshRec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", refreshRec.Code)
	}

	// Logout is idempotent.
	req = httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: refresh})
	if rec := env.do(req); rec.Code != http.StatusOK {
		t.Errorf("expected 200 on repeated logout, got %d", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)); rec.Code != http.StatusOK {
		t.Errorf("healthz: expected 200, got %d", rec.Code)
	}
	rec := env.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("readyz: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"sessionStore":"ok"`) {
		t.Errorf("readyz body missing store state: %s", rec.Body.String())
	}
}

func TestLoginValidation400(t *testing.T) {
	env := newTestEnv(t)

	rec := env.login(t, "not-an-email", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Fields) != 2 {
		t.Errorf("expected field errors for email and password, got %v", body.Fields)
	}
}
