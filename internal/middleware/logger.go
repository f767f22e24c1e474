// Package middleware provides reusable HTTP middleware for the API server.
package middleware

import (
	"log"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// wrappedWriter captures the status code and body size written downstream.
type wrappedWriter struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func (rw *wrappedWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *wrappedWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// Logger logs method, path, status, response size, and duration for every
// request, tagged with the chi request ID when one is present.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &wrappedWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		if reqID := chimw.GetReqID(r.Context()); reqID != "" {
			log.Printf("[%s] %s %s %d %dB %s", reqID, r.Method, r.URL.Path, ww.statusCode, ww.bytes, time.Since(start))
			return
		}
		log.Printf("%s %s %d %dB %s", r.Method, r.URL.Path, ww.statusCode, ww.bytes, time.Since(start))
	})
}
