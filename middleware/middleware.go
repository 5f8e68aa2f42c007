package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Middleware helpers are provided as constructor-style wrappers.
// Use `Logger(logger, next)` and `Recover(logger, next)` to wrap handlers.

// statusRecorder remembers the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// _logger returns a func http.Handler that logs basic request information and duration.
// Form bodies are never logged: they carry passwords.
func _logger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			logger.Info("request.done",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote", r.RemoteAddr),
				zap.String("request_id", r.Header.Get(RequestIDHeader)),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

// _recover returns a func http.Handler that recovers from panics in handlers and returns HTTP 500.
func _recover(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic recovered", zap.Any("panic", rec), zap.String("path", r.URL.Path))
					http.Error(w, "internal server error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Logger is a constructor-style wrapper equivalent to Logger(logger)(next).
func Logger(logger *zap.Logger, next http.Handler) http.Handler {
	return _logger(logger)(next)
}

// Recover is a constructor-style wrapper equivalent to Recover(logger)(next).
func Recover(logger *zap.Logger, next http.Handler) http.Handler {
	return _recover(logger)(next)
}
