package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uber-go/tally/v4"
	promreporter "github.com/uber-go/tally/v4/prometheus"
	"io"
	"time"
)

type Options struct {
	//Prefix prepended to every metric name
	Prefix string
	//Tags attached to the root scope
	Tags map[string]string
	//Prometheus exports the scope into Registry when enabled
	Prometheus bool
	//ReportInterval is the flush interval of the root scope
	ReportInterval time.Duration
}

var DefaultOptions = Options{
	Prefix:         "streaming_state",
	Prometheus:     false,
	ReportInterval: time.Second,
}

// Metrics owns a tally root scope and, when Prometheus export is enabled,
// the registry the scope reports into.
type Metrics struct {
	Scope    tally.Scope
	Registry *prometheus.Registry
	closer   io.Closer
}

func (m *Metrics) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer.Close()
}

func New(options Options) *Metrics {
	scopeOptions := tally.ScopeOptions{
		Prefix: options.Prefix,
		Tags:   options.Tags,
	}
	var registry *prometheus.Registry
	if options.Prometheus {
		registry = prometheus.NewRegistry()
		scopeOptions.CachedReporter = promreporter.NewReporter(promreporter.Options{Registerer: registry})
		scopeOptions.Separator = promreporter.DefaultSeparator
	}
	scope, closer := tally.NewRootScope(scopeOptions, options.ReportInterval)
	return &Metrics{Scope: scope, Registry: registry, closer: closer}
}

// Nop returns metrics that discard everything.
func Nop() *Metrics {
	return &Metrics{Scope: tally.NoopScope}
}
