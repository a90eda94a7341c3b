package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Modes accepted by Middleware.
const (
	ModeDisabled = "disabled"
	ModeJWT      = "jwt"
)

// Middleware returns middleware that stores the request owner in the context.
// In ModeDisabled every request is attributed to defaultOwner. In ModeJWT the
// request must carry "Authorization: Bearer <token>" signed with secret.
func Middleware(mode, secret, defaultOwner string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if mode != ModeJWT {
				next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), defaultOwner)))
				return
			}
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				unauthorized(w)
				return
			}
			owner, err := ParseToken(token, secret)
			if err != nil {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}
