package core

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"momentum/internal/types"
)

// CronAuthMiddleware guards the /v1 trigger endpoints with the shared cron
// secret. The caller presents it as a bearer token; the configured value is
// either the plaintext secret or a bcrypt hash of it (prefix "$2"), letting
// deployments avoid storing the plaintext at rest.
//
// Failure modes are distinguished for operators, never for attackers:
//   - auth_cron_secret_missing: no Authorization header or empty token.
//   - auth_cron_secret_invalid: token does not match the configured secret.
func (s *Server) CronAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthSecretMissing, "Authorization header is required")
			return
		}

		token := extractBearerToken(authHeader)
		if token == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthSecretMissing, "Bearer token is required")
			return
		}

		if !secretMatches(s.Config.Cron.Secret.Unmask(), token) {
			s.Logger.Warn("cron auth failed",
				"method", r.Method,
				"path", r.URL.Path,
			)
			s.writeAuthError(w, r, types.ErrCodeAuthSecretInvalid, "Invalid cron secret")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// secretMatches compares the presented token against the configured secret.
// A "$2"-prefixed configured value is treated as a bcrypt hash; anything else
// is compared in constant time.
func secretMatches(configured, presented string) bool {
	if strings.HasPrefix(configured, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(presented)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) == 1
}

// extractBearerToken parses an Authorization header value in the form
// "Bearer <token>" (scheme case-insensitive per RFC 7235). Returns "" when
// the format is invalid.
func extractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}

// writeAuthError answers 401 with the given error code.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	JSON(w, r, http.StatusUnauthorized, APIErrorResponse{Error: ErrorDetail{
		Code:      string(code),
		Message:   message,
		RequestID: types.GetRequestID(r.Context()),
	}})
}
