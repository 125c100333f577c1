package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/attribute"

	"rental_dashboard/internal/httpcache"
	"rental_dashboard/internal/obs"
)

// observe assigns the request id and, once the response is written, records
// the access log line, metrics and span.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get(obs.RequestIDHeader)
		if requestID == "" {
			requestID = obs.NewRequestID()
		}
		_, route := s.mux.Handler(r)
		if route == "" {
			route = "unmatched"
		}

		ctx, span := obs.StartSpan(obs.WithRequestID(r.Context(), requestID), s.tracer, "http.request",
			attribute.String("http.method", r.Method),
			attribute.String("http.route", route),
		)
		defer span.End()

		w.Header().Set(obs.RequestIDHeader, requestID)
		if s.logger.GetLevel() <= log.DebugLevel {
			s.logRequestHeaders(requestID, r.Header)
		}
		recorder := httpcache.NewStatusRecorder(w)
		next.ServeHTTP(recorder, r.WithContext(ctx))

		duration := time.Since(start)
		span.SetAttributes(attribute.Int("http.status_code", recorder.Status()))
		s.metrics.ObserveRequest(route, recorder.Status(), duration)

		principal := ""
		if p, err := s.auth.Resolve(r); err == nil {
			principal = p.ID
		}
		obs.LogAccess(s.logger, obs.RequestContext{
			RequestID:   requestID,
			Method:      r.Method,
			Path:        r.URL.Path,
			Route:       route,
			Principal:   principal,
			Status:      recorder.Status(),
			Duration:    duration,
			BytesOut:    recorder.BytesWritten(),
			CacheStatus: recorder.Header().Get(httpcache.HeaderCache),
			UserAgent:   r.UserAgent(),
			RemoteAddr:  r.RemoteAddr,
		})
	})
}

func (s *Server) logRequestHeaders(requestID string, header http.Header) {
	names := make([]string, 0, len(header))
	for name := range header {
		names = append(names, name)
	}
	sort.Strings(names)
	keyvals := []any{"request_id", requestID}
	for _, name := range names {
		keyvals = append(keyvals, name, obs.RedactHeaderValue(name, header.Get(name)))
	}
	s.logger.Debug("request headers", keyvals...)
}
