package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Общие HTTP-метрики
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets, // [0.005..10]
		},
		[]string{"method", "path", "status"},
	)
)

// Escrow metrics.
var (
	escrowOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amanat_escrow_operations_total",
			Help: "Escrow operations by name and outcome.",
		},
		[]string{"op", "outcome"},
	)

	valueMoved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amanat_value_moved_total",
			Help: "Value moved through the escrow by kind.",
		},
		[]string{"kind"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "amanat_ready",
		Help: "1 when the service accepts traffic.",
	})
)

var initOnce sync.Once

// Init registers the metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration, escrowOps, valueMoved, ready)
	})
}

// Хэндлер Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveOp counts one escrow operation. outcome is "ok" or an error class.
func ObserveOp(op, outcome string) {
	escrowOps.WithLabelValues(op, outcome).Inc()
}

// AddValue adds amount to the value moved for kind (contribution, refund, payout).
func AddValue(kind string, amount int64) {
	if amount <= 0 {
		return
	}
	valueMoved.WithLabelValues(kind).Add(float64(amount))
}

// SetReady flips the readiness gauge.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// Обёртка для измерения RPS/latency/в полёте.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// routeShapes lists the parameterised routes; ":" segments match any value.
var routeShapes = [][]string{
	split("/v1/organizations/:org"),
	split("/v1/organizations/:org/index"),
	split("/v1/organizations/:org/creators/:identity"),
	split("/v1/organizations/:org/trust-score"),
	split("/v1/organizations/:org/verification"),
	split("/v1/organizations/:org/campaigns"),
	split("/v1/organizations/:org/campaigns/:campaign"),
	split("/v1/organizations/:org/campaigns/:campaign/index"),
	split("/v1/organizations/:org/campaigns/:campaign/contributions"),
	split("/v1/organizations/:org/campaigns/:campaign/refund"),
	split("/v1/organizations/:org/campaigns/:campaign/withdrawal"),
	split("/v1/campaigns/:campaign/donations/:donor"),
	split("/v1/accounts/:identity/balance"),
}

func split(p string) []string {
	return strings.Split(strings.Trim(p, "/"), "/")
}

// CanonicalPath collapses identifiers in known routes so the path label
// stays low-cardinality. Unknown paths are returned without the query.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" || p == "/" {
		return "/"
	}
	segs := split(p)
	for _, shape := range routeShapes {
		if matchShape(shape, segs) {
			return "/" + strings.Join(shape, "/")
		}
	}
	return p
}

func matchShape(shape, segs []string) bool {
	if len(shape) != len(segs) {
		return false
	}
	for i, s := range shape {
		if strings.HasPrefix(s, ":") {
			if segs[i] == "" {
				return false
			}
			continue
		}
		if s != segs[i] {
			return false
		}
	}
	return true
}

// statusWriter: локальная копия, чтобы знать код ответа.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE working behind the instrumentation wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
