package auth

import (
	"net/http"
	"strings"
)

// DefaultCookieName carries the owner token for clients that cannot set headers,
// such as EventSource.
const DefaultCookieName = "pitch_owner"

const bearerPrefix = "Bearer "

// TokenFromRequest returns the bearer token, falling back to the named cookie.
func TokenFromRequest(r *http.Request, cookieName string) string {
	if r == nil {
		return ""
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > len(bearerPrefix) && strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(header[len(bearerPrefix):])
	}
	if cookieName == "" {
		return ""
	}
	cookie, err := r.Cookie(cookieName)
	if err != nil || cookie == nil {
		return ""
	}
	return cookie.Value
}

// ValidateRequest extracts the owner token from the request and validates it.
func (i *TokenIssuer) ValidateRequest(r *http.Request) (string, error) {
	token := TokenFromRequest(r, i.cookieName)
	if token == "" {
		return "", ErrMissingToken
	}
	return i.ValidateToken(token)
}
