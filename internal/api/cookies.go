// LearnLoop - E-Learning Platform Authentication Core
// Copyright 2026 LearnLoop Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/learnloop/learnloop

package api

import (
	"net/http"
	"time"
)

// Auth cookie names. The CSRF cookie is owned by the csrf package.
const (
	accessCookieName  = "access_token"
	refreshCookieName = "refresh_token"
)

// setAuthCookies writes the access and refresh token cookies. Both are
// HttpOnly SameSite=Lax; Lax keeps top-level navigation logins working
// while the CSRF guard covers the cross-site write case.
func (s *Server) setAuthCookies(w http.ResponseWriter, accessToken, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookieName,
		Value:    accessToken,
		Path:     "/",
		MaxAge:   int(s.authority.AccessTTL() / time.Second),
		Secure:   s.secureCookies,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    refreshToken,
		Path:     "/",
		MaxAge:   int(s.authority.RefreshTTL() / time.Second),
		Secure:   s.secureCookies,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearAuthCookies expires both token cookies.
func (s *Server) clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{accessCookieName, refreshCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			Secure:   s.secureCookies,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// accessTokenFromRequest returns the access token from the cookie, falling
// back to the Authorization bearer header.
func accessTokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(accessCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	const prefix = "Bearer "
	if auth := r.Header.Get("Authorization"); len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

// refreshTokenFromRequest returns the refresh token cookie value, empty when
// absent.
func refreshTokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		return cookie.Value
	}
	return ""
}
