package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/lukasschreiber/wimc/internal/auth"
	"github.com/lukasschreiber/wimc/internal/store"
	"github.com/lukasschreiber/wimc/internal/token"
)

// RequireAuth validates the bearer token and populates the request identity.
//
// The token must be the caller's current session credential (the one stored at
// login) and must verify as a signed token whose subject matches that user.
// A missing header is 401; a token that fails any later check is 403.
func RequireAuth(users *store.UserStore, secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				denyJSON(w, http.StatusUnauthorized, "authentication required")
				return
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			user, err := users.GetByAccessToken(raw)
			if err != nil {
				denyJSON(w, http.StatusInternalServerError, "internal error")
				return
			}
			if user == nil {
				denyJSON(w, http.StatusForbidden, "invalid session")
				return
			}

			claims, err := token.Verify(raw, secret)
			if err != nil {
				if errors.Is(err, token.ErrExpired) {
					denyJSON(w, http.StatusForbidden, "session expired")
					return
				}
				denyJSON(w, http.StatusForbidden, "invalid session")
				return
			}
			if claims.Subject != user.UUID {
				denyJSON(w, http.StatusForbidden, "invalid session")
				return
			}

			ctx := auth.WithIdentity(r.Context(), auth.Identity{
				UserID: user.ID,
				UUID:   user.UUID,
				Email:  user.Email,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func denyJSON(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
