package httpapi

import (
	"net/http"
	"time"

	"github.com/snackmasta/sakan-munazam/internal/logger"
)

func loggingMiddleware(log *logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debugw("http request",
			"method", r.Method, "path", r.URL.Path,
			"from", r.RemoteAddr, "dur", time.Since(start))
	})
}
