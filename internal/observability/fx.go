package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/ordersync/internal/observability/logger"
	"github.com/smallbiznis/ordersync/internal/observability/metrics"
	"github.com/smallbiznis/ordersync/internal/observability/tracing"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
)

// Module provides the process logger, the tracer provider and the engine
// metrics registered on the default prometheus registry.
var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		Config.loggerConfig,
		logger.New,
		Config.tracingConfig,
		tracing.NewProvider,
		func() prometheus.Registerer { return prometheus.DefaultRegisterer },
		metrics.NewEngineMetrics,
	),
	// Nothing else asks for the tracer provider eagerly; the global must be
	// installed before the first span.
	fx.Invoke(func(trace.TracerProvider) {}),
)

func (c Config) loggerConfig() logger.Config {
	return logger.Config{
		ServiceName:         c.ServiceName,
		PosID:               c.PosID,
		Environment:         c.Environment,
		Version:             c.Version,
		Level:               c.LogLevel,
		Format:              c.LogFormat,
		IncludeCaller:       true,
		IncludeStackOnError: c.Debug(),
	}
}

func (c Config) tracingConfig() tracing.Config {
	return tracing.Config{
		Enabled:          c.OtelEnabled,
		ServiceName:      c.ServiceName,
		ServiceVersion:   c.Version,
		PosID:            c.PosID,
		Environment:      c.Environment,
		ExporterEndpoint: c.OtelExporterEndpoint,
		ExporterProtocol: c.OtelExporterProtocol,
		SamplingRatio:    c.OtelSamplingRatio,
	}
}
