package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	dErrors "piivault/pkg/domain-errors"
	"piivault/pkg/platform/httputil"
	"piivault/pkg/requestcontext"
)

// CallerClaims are the claims the vault trusts from a gateway-issued token.
type CallerClaims struct {
	Subject    string
	Permission string
}

// TokenValidator validates a bearer token and returns the caller claims.
type TokenValidator interface {
	ValidateToken(tokenString string) (*CallerClaims, error)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller in the request context.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "unauthorized access - missing or malformed authorization header",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Missing or invalid Authorization header"))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Invalid or expired token"))
				return
			}

			ctx = requestcontext.WithCaller(ctx, requestcontext.Caller{
				Subject:    claims.Subject,
				Permission: claims.Permission,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission allows only callers holding one of the listed permissions.
func RequirePermission(allowed ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, err := httputil.RequireCaller(r.Context())
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			for _, p := range allowed {
				if caller.Permission == p {
					next.ServeHTTP(w, r)
					return
				}
			}
			httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "insufficient permission"))
		})
	}
}
