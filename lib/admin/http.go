package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// InfoFunc reports the state shown on /healthz.
type InfoFunc func() any

// NewHTTPHandler exposes the controller on the admin listener:
//
//	POST /admin/{command}  shutdown, crash, clear-log, snapshot
//	GET  /metrics          prometheus metrics
//	GET  /healthz          JSON status
func NewHTTPHandler(c *Controller, info InfoFunc, timeout time.Duration, debug bool) http.Handler {
	mux := http.NewServeMux()

	handle := func(pattern string, h http.HandlerFunc) {
		if debug {
			h = loggerMiddleware(h)
		}
		mux.HandleFunc(pattern, h)
	}

	handle("POST /admin/{command}", func(w http.ResponseWriter, r *http.Request) {
		kind, err := ParseKind(r.PathValue("command"))
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"Err": err.Error()})
			return
		}

		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		if err := c.Do(ctx, kind); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"Err": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"Ok": nil})
	})

	handle("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	handle("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		var body any = map[string]string{"status": "ok"}
		if info != nil {
			body = info()
		}
		writeJSON(w, http.StatusOK, body)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warningf("failed to write admin response: %v", err)
	}
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// responseWriter is a custom ResponseWriter that captures status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggerMiddleware is a middleware that logs HTTP requests
func loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		log.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	}
}
