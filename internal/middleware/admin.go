package middleware

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// AdminKey guards routes with the X-Admin-Key header, compared against a
// bcrypt hash. An empty hash rejects every request.
func AdminKey(hash string) func(http.Handler) http.Handler {
	hashed := []byte(hash)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-Admin-Key")
			if len(hashed) == 0 || key == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Admin access is not authorized", r)
				return
			}
			if err := bcrypt.CompareHashAndPassword(hashed, []byte(key)); err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Admin access is not authorized", r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
