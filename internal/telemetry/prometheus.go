package telemetry

import (
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// NewPrometheusMetrics builds a Metrics recorder whose OTEL instruments are
// collected into a dedicated Prometheus registry, plus the http.Handler
// that renders that registry in Prometheus exposition format. The recorder
// is the same OTEL-backed implementation ClueMetrics provides; only the
// meter provider differs, so every counter and histogram recorded through
// it is observable at the metrics route.
func NewPrometheusMetrics() (Metrics, http.Handler, error) {
	registry := prom.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("github.com/judgehost/judgehost")
	return &ClueMetrics{meter: meter}, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}
