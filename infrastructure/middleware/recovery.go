// Package middleware provides HTTP middleware for the service layer
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	coreerrors "github.com/lodestone-core/lodestone/infrastructure/errors"
	"github.com/lodestone-core/lodestone/infrastructure/httputil"
	"github.com/lodestone-core/lodestone/infrastructure/logging"
)

// RecoveryMiddleware recovers from panics and logs them
type RecoveryMiddleware struct {
	logger *logging.Logger
}

// NewRecoveryMiddleware creates a new recovery middleware
func NewRecoveryMiddleware(logger *logging.Logger) *RecoveryMiddleware {
	return &RecoveryMiddleware{
		logger: logger,
	}
}

// Handler returns the recovery middleware handler
func (m *RecoveryMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				// Log the panic with stack trace
				stack := debug.Stack()
				m.logger.WithContext(r.Context()).WithFields(map[string]interface{}{
					"panic":       fmt.Sprintf("%v", err),
					"stack":       string(stack),
					"path":        r.URL.Path,
					"method":      r.Method,
					"remote_addr": r.RemoteAddr,
				}).Error("Panic recovered")

				// Send error response
				coreErr := coreerrors.InternalError("internal server error", fmt.Errorf("%v", err))
				httputil.WriteErrorResponse(w, r, coreErr.HTTPStatus(), string(coreErr.Kind), coreErr.Message, coreErr.Details)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
