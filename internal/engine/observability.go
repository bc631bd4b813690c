package engine

import (
	"errors"

	"github.com/ggoodman/mcp-starter-go/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/ggoodman/mcp-starter-go/internal/engine"

// Request outcomes used for logs, metrics and span attributes.
const (
	outcomeOK          = "ok"
	outcomeInvalid     = "invalid"
	outcomeUnsupported = "unsupported"
	outcomeFail        = "fail"
	outcomeAbandoned   = "abandoned"
	outcomeClosed      = "closed"
)

// unknownMethod labels requests for methods the engine does not route, so
// client-chosen names cannot grow the label set.
const unknownMethod = "unknown"

var routedMethods = map[string]bool{
	string(mcp.InitializeMethod):             true,
	string(mcp.PingMethod):                   true,
	string(mcp.ToolsListMethod):              true,
	string(mcp.ToolsCallMethod):              true,
	string(mcp.ResourcesListMethod):          true,
	string(mcp.ResourcesReadMethod):          true,
	string(mcp.ResourcesTemplatesListMethod): true,
	string(mcp.PromptsListMethod):            true,
	string(mcp.PromptsGetMethod):             true,
}

func methodLabel(method string) string {
	if routedMethods[method] {
		return method
	}
	return unknownMethod
}

type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	active   prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcp",
			Subsystem: "engine",
			Name:      "requests_total",
			Help:      "Requests handled, by method and outcome.",
		}, []string{"method", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mcp",
			Subsystem: "engine",
			Name:      "request_duration_seconds",
			Help:      "Request handling latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mcp",
			Subsystem: "engine",
			Name:      "sessions_active",
			Help:      "Initialized sessions held by this process.",
		}),
	}
	m.requests = register(reg, m.requests)
	m.duration = register(reg, m.duration)
	m.active = register(reg, m.active)
	return m
}

// register adds c to reg, reusing an identical collector registered by an
// earlier engine in the same process.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func defaultTracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(tracerName)
}
