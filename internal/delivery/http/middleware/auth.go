package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// CronSecretHeader carries the shared cron secret.
const CronSecretHeader = "X-Cron-Secret"

// AdminAuth requires "Authorization: Bearer <token>". An empty token rejects
// every request.
func AdminAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || !secretEqual(strings.TrimSpace(got), token) {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CronAuth accepts the shared secret header or the scheduler header set to "true".
func CronAuth(secret, schedulerHeader string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secretEqual(r.Header.Get(CronSecretHeader), secret) {
				next.ServeHTTP(w, r)
				return
			}
			if schedulerHeader != "" && strings.EqualFold(r.Header.Get(schedulerHeader), "true") {
				next.ServeHTTP(w, r)
				return
			}
			unauthorized(w)
		})
	}
}

func secretEqual(got, want string) bool {
	if want == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}
