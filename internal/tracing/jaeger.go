package tracing

import (
	"io"
	"net"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/uber/jaeger-client-go/config"
	"github.com/uber/jaeger-client-go/log/zap"

	"github.com/customeros/mailpulse/internal/logger"
)

const defaultServiceName = "mailpulse"

// JaegerConfig selects where spans go. A collector endpoint wins over the
// local agent.
type JaegerConfig struct {
	Enabled       bool          `env:"JAEGER_ENABLED" envDefault:"true"`
	ServiceName   string        `env:"JAEGER_SERVICE_NAME" envDefault:"mailpulse"`
	Environment   string        `env:"JAEGER_ENVIRONMENT"`
	Endpoint      string        `env:"JAEGER_ENDPOINT"`
	AgentHost     string        `env:"JAEGER_AGENT_HOST" envDefault:"localhost"`
	AgentPort     string        `env:"JAEGER_AGENT_PORT" envDefault:"6831"`
	SamplerType   string        `env:"JAEGER_SAMPLER_TYPE" envDefault:"const"`
	SamplerParam  float64       `env:"JAEGER_SAMPLER_PARAM" envDefault:"1"`
	LogSpans      bool          `env:"JAEGER_REPORTER_LOG_SPANS" envDefault:"false"`
	FlushInterval time.Duration `env:"JAEGER_REPORTER_FLUSH_INTERVAL" envDefault:"1s"`
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewJaegerTracer builds the process tracer. Without a config, or with
// tracing disabled, spans go to a noop tracer.
func NewJaegerTracer(jaegerConfig *JaegerConfig, log logger.Logger) (opentracing.Tracer, io.Closer, error) {
	if jaegerConfig == nil || !jaegerConfig.Enabled {
		log.Info("Jaeger tracing is disabled")
		return opentracing.NoopTracer{}, nopCloser{}, nil
	}

	cfg := buildJaegerConfiguration(jaegerConfig)
	log.Infof("Jaeger tracing for %s reports to %s", cfg.ServiceName, reportTarget(cfg.Reporter))
	return cfg.NewTracer(config.Logger(zap.NewLogger(log.Logger())))
}

func buildJaegerConfiguration(jaegerConfig *JaegerConfig) *config.Configuration {
	serviceName := jaegerConfig.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	cfg := &config.Configuration{
		ServiceName: serviceName,
		Sampler: &config.SamplerConfig{
			Type:  jaegerConfig.SamplerType,
			Param: jaegerConfig.SamplerParam,
		},
		Reporter: &config.ReporterConfig{
			LogSpans:            jaegerConfig.LogSpans,
			BufferFlushInterval: jaegerConfig.FlushInterval,
		},
		Tags: []opentracing.Tag{{Key: "app", Value: defaultServiceName}},
	}
	if jaegerConfig.Environment != "" {
		cfg.Tags = append(cfg.Tags, opentracing.Tag{Key: "environment", Value: jaegerConfig.Environment})
	}

	if jaegerConfig.Endpoint != "" {
		cfg.Reporter.CollectorEndpoint = jaegerConfig.Endpoint
	} else {
		cfg.Reporter.LocalAgentHostPort = net.JoinHostPort(jaegerConfig.AgentHost, jaegerConfig.AgentPort)
	}
	return cfg
}

func reportTarget(reporter *config.ReporterConfig) string {
	if reporter.CollectorEndpoint != "" {
		return reporter.CollectorEndpoint
	}
	return reporter.LocalAgentHostPort
}
