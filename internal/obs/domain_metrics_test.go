package obs_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/liff-store/internal/obs"
)

func TestDomainMetricsRecordOutcomes(t *testing.T) {
	obs.MustRegisterDomainMetrics("liff_test", prometheus.NewRegistry())

	before := testutil.ToFloat64(obs.CheckoutTotal.WithLabelValues("ok"))
	obs.ObserveCheckout("ok")
	require.Equal(t, before+1, testutil.ToFloat64(obs.CheckoutTotal.WithLabelValues("ok")))

	before = testutil.ToFloat64(obs.VIPLevelChangesTotal.WithLabelValues("0", "1"))
	obs.ObserveVIPLevelChange(0, 1)
	obs.ObserveVIPLevelChange(1, 1)
	require.Equal(t, before+1, testutil.ToFloat64(obs.VIPLevelChangesTotal.WithLabelValues("0", "1")))
	require.Zero(t, testutil.ToFloat64(obs.VIPLevelChangesTotal.WithLabelValues("1", "1")))

	before = testutil.ToFloat64(obs.CouponValidationTotal.WithLabelValues("USAGE_CAP"))
	obs.ObserveCouponValidation("USAGE_CAP")
	require.Equal(t, before+1, testutil.ToFloat64(obs.CouponValidationTotal.WithLabelValues("USAGE_CAP")))
}

func TestRequestLoggerEscalatesServerErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	handler := obs.RequestLogger{Logger: logger}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout?userId=U123", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "error", line["level"])
	require.Equal(t, "U123", line["member_id"])
	require.EqualValues(t, 500, line["status"])
}
