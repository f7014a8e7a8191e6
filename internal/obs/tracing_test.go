package obs_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/noah-isme/liff-store/internal/obs"
)

func TestTracingMiddlewareNamesSpanAfterRoute(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := tp.Tracer("test")

	r := chi.NewRouter()
	r.Use(obs.TracingMiddleware)
	r.Get("/api/v1/admin/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders/42", nil)
	ctx, span := tracer.Start(req.Context(), "server")
	r.ServeHTTP(httptest.NewRecorder(), req.WithContext(ctx))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	require.Equal(t, "GET /api/v1/admin/orders/{id}", ended[0].Name())
	require.Equal(t, codes.Error, ended[0].Status().Code)
}

func TestInitTracerNone(t *testing.T) {
	shutdown, err := obs.InitTracer(t.Context(), obs.TracingConfig{Exporter: "none"})
	require.NoError(t, err)
	require.NoError(t, shutdown(t.Context()))
}
