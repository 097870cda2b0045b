package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

type ctxKey struct{}

// RegisterRoutes mounts the API on router.
func RegisterRoutes(router *mux.Router, h *Handler) {
	router.Use(requestIDMiddleware, loggingMiddleware(h.logger))

	router.HandleFunc("/healthz", h.Health).Methods("GET")
	router.HandleFunc("/v1/evaluate", h.Evaluate).Methods("POST")
	router.HandleFunc("/v1/lint", h.Lint).Methods("POST")
	router.HandleFunc("/v1/forms/{formID}/responses/{responseID}/evaluate", h.EvaluateStored).Methods("POST")
}

// NewRouter returns a router with every route registered.
func NewRouter(h *Handler) *mux.Router {
	router := mux.NewRouter()
	RegisterRoutes(router, h)
	return router
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info().
				Str("request_id", requestID(r)).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}
