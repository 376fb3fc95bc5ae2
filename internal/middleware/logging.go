package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// LoggingMiddleware logs one line per HTTP request with its status, duration
// and the chi request id.
func LoggingMiddleware(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			fields := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", float64(time.Since(start).Microseconds()) / 1000,
				"remote", r.RemoteAddr,
			}
			if reqID := chimw.GetReqID(r.Context()); reqID != "" {
				fields = append(fields, "request_id", reqID)
			}

			switch {
			case status >= http.StatusInternalServerError:
				log.Errorw("http request", fields...)
			case status >= http.StatusBadRequest:
				log.Warnw("http request", fields...)
			default:
				log.Infow("http request", fields...)
			}
		})
	}
}

// Recoverer turns a handler panic into a 500 response and logs it.
func Recoverer(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					if p == http.ErrAbortHandler {
						panic(p)
					}
					log.Errorw("panic serving request",
						"method", r.Method,
						"path", r.URL.Path,
						"panic", p,
						"request_id", chimw.GetReqID(r.Context()),
						zap.Stack("stack"),
					)
					w.WriteHeader(http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
