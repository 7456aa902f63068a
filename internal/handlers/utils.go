// internal/handlers/utils.go
package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blanks/internal/auth"
)

// extractCookieToken extracts a named cookie value from a "Cookie" header, or
// returns empty if not found.
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

// EnsureSession identifies the browser session behind a request, minting an
// ephemeral signed cookie when none exists. This is transport identity only;
// authority inside a lobby always comes from the lobby secret.
func EnsureSession(w http.ResponseWriter, r *http.Request) (uuid.UUID, error) {
	token := extractCookieToken(r.Header.Get("Cookie"), "session_token")
	if token != "" {
		if sub, err := auth.AuthenticateJWT(token); err == nil {
			if id, parseErr := uuid.Parse(sub); parseErr == nil {
				return id, nil
			}
		}
		// Fall through: bad or stale token gets replaced.
	}

	id := uuid.New()
	newToken, err := auth.CreateJWT(id.String())
	if err != nil {
		return uuid.Nil, fmt.Errorf("minting session token: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "session_token",
		Value:    newToken,
		HttpOnly: true,
		Path:     "/",
	})
	return id, nil
}
