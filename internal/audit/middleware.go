package audit

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HTTPRecorder records admin requests after they have been handled. Reads are skipped.
type HTTPRecorder struct {
	Service Service
	OnError func(error)
}

// Middleware returns a chi middleware that records one audit entry per write request.
func (r HTTPRecorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !r.Service.Enabled || !isWrite(req.Method) {
			next.ServeHTTP(w, req)
			return
		}

		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, req)

		route, resourceID := "", ""
		if rc := chi.RouteContext(req.Context()); rc != nil {
			route = rc.RoutePattern()
			resourceID = lastParam(rc)
		}
		ctx := context.WithoutCancel(req.Context())
		if err := r.Service.Record(ctx, req, route, resourceID, recorder.Status()); err != nil && r.OnError != nil {
			r.OnError(err)
		}
	})
}

// lastParam returns the innermost named path parameter, skipping the mount wildcards.
func lastParam(rc *chi.Context) string {
	for i := len(rc.URLParams.Keys) - 1; i >= 0; i-- {
		if rc.URLParams.Keys[i] == "*" || i >= len(rc.URLParams.Values) {
			continue
		}
		if v := rc.URLParams.Values[i]; v != "" {
			return v
		}
	}
	return ""
}

func isWrite(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Status() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	return s.ResponseWriter.Write(b)
}
