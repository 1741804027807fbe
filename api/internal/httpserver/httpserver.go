package httpserver

import (
	"context"
	"log"
	"net/http"
	"time"

	"bodyscan-coach/api/internal/handle"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// HealthFunc reports whether a dependency is usable; nil means healthy.
type HealthFunc func(ctx context.Context) error

func NewRouter(h *handle.Handle, health HealthFunc, allowedOrigins []string) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", healthz(health)).Methods("GET")
	r.HandleFunc("/api/analyze", h.Analyze).Methods("POST")
	r.HandleFunc("/api/reanalyze", h.Reanalyze).Methods("POST")
	r.HandleFunc("/api/reports/{id}", h.Report).Methods("GET")

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"X-Report-ID"},
	})
	return c.Handler(loggingMiddleware(r))
}

func healthz(health HealthFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := health(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("db: not ok\n" + err.Error()))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// loggingMiddleware logs method, path, status and duration, never bodies.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)
		log.Printf("RES: %d - %s %s - %v", wrapper.statusCode, r.Method, r.URL.Path, time.Since(start))
	})
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
