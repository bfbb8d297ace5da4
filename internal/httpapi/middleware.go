package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// RequestObserver receives one observation per served request.
type RequestObserver interface {
	ObserveHTTP(method, path string, status int, duration time.Duration)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(p)
	s.bytes += n
	return n, err
}

// Instrument logs every request and reports it to obs (which may be nil).
// 5xx responses log at error level and 4xx at warn.
func Instrument(next http.Handler, logger zerolog.Logger, obs RequestObserver) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		route := Route(r.URL.Path)

		event := logger.Info()
		if status >= 500 {
			event = logger.Error()
		} else if status >= 400 {
			event = logger.Warn()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", elapsed).
			Str("client_ip", r.RemoteAddr).
			Int("bytes", rec.bytes).
			Msg("http_request")

		if obs != nil {
			obs.ObserveHTTP(r.Method, route, status, elapsed)
		}
	})
}

// Route maps a request path to its route template so metric labels stay
// bounded.
func Route(path string) string {
	path = strings.TrimSuffix(path, "/")
	switch path {
	case "/python-version", "/healthz", "/metrics", layoutsPath:
		return path
	}
	if !strings.HasPrefix(path, layoutsPath+"/") {
		return "other"
	}
	segments := strings.Split(strings.TrimPrefix(path, layoutsPath+"/"), "/")
	switch {
	case len(segments) == 1:
		return layoutsPath + "/{id}"
	case len(segments) == 3 && segments[1] == "artifacts":
		return layoutsPath + "/{id}/artifacts/{name}"
	default:
		return "other"
	}
}
