package middleware

import (
	"net/http"

	"github.com/waveroom/backend/internal/logging"
)

// RequestContext seeds every request's context with the attributes the
// structured logger attaches to each line: method, path, resolved client IP.
// It runs right after ClientIP so the IP is already trustworthy.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithRequestAttrs(r.Context(), &logging.RequestAttrs{
			Method: r.Method,
			Path:   r.URL.Path,
			IP:     logging.ExtractClientIP(r),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IdentityContext folds the authenticated room and user into the request
// attributes once token validation has run.
func IdentityContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims := GetClaims(r.Context()); claims != nil {
			r = r.WithContext(logging.UpdateRequestAttrs(r.Context(), claims.RoomID, claims.UserID))
		}
		next.ServeHTTP(w, r)
	})
}
