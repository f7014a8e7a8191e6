package obs

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Request surfaces used as the "surface" label.
const (
	SurfaceStorefront = "storefront"
	SurfaceAdmin      = "admin"
	SurfaceOps        = "ops"
)

// HTTPMetrics groups the request collectors. Every series carries the surface so storefront
// traffic can be told apart from the admin console without listing routes.
type HTTPMetrics struct {
	ReqTotal *prometheus.CounterVec
	ReqDur   *prometheus.HistogramVec
	InFlight *prometheus.GaugeVec
}

// NewHTTPMetrics registers and returns HTTP metrics collectors. Collectors already present in
// reg are reused.
func NewHTTPMetrics(namespace string, buckets []float64, reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if len(buckets) == 0 {
		buckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500}
	} else {
		sort.Float64s(buckets)
	}
	return &HTTPMetrics{
		ReqTotal: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests handled, by surface, method, route and status.",
		}, []string{"surface", "method", "route", "status"})),
		ReqDur: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   buckets,
		}, []string{"surface", "method", "route"})),
		InFlight: register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "Requests currently being served, by surface.",
		}, []string{"surface"})),
	}
}

// Surface classifies a request path: admin console, health/metrics/debug endpoints, or the
// customer storefront.
func Surface(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/v1/admin"):
		return SurfaceAdmin
	case strings.HasPrefix(path, "/api/"):
		return SurfaceStorefront
	default:
		return SurfaceOps
	}
}

// ParseBucketsCSV converts a comma-separated list of bucket boundaries (milliseconds) into
// floats. Blank, malformed and non-positive entries are skipped.
func ParseBucketsCSV(csv string) []float64 {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	var out []float64
	for _, part := range strings.Split(csv, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || v <= 0 {
			continue
		}
		out = append(out, v)
	}
	return out
}

// DurationMillis converts a duration to milliseconds for metric observation.
func DurationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(fmt.Errorf("register %T: %w", c, err))
	}
	return c
}
