package handlers

import "strings"

// extractCookieToken pulls a named cookie's value out of a raw Cookie header.
// Returns "" when the cookie is absent.
func extractCookieToken(cookieHeader, cookieName string) string {
	parts := strings.Split(cookieHeader, cookieName+"=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}
