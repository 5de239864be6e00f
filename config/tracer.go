package config

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zoobzio/hellotrace"
	"github.com/zoobzio/hellotrace/otlp"
)

// NewTracer assembles a Tracer from c. Metrics are registered with reg
// when it is not nil. Extra options are applied last.
func (c *Config) NewTracer(logger logr.Logger, reg prometheus.Registerer, extra ...hellotrace.Option) (*hellotrace.Tracer, error) {
	reporter, err := c.newReporter(logger, reg)
	if err != nil {
		return nil, err
	}

	opts := []hellotrace.Option{
		hellotrace.WithLogger(logger),
		hellotrace.WithReporter(reporter),
		hellotrace.WithSampler(hellotrace.NewConstSampler(c.Sampler.Param > 0)),
	}
	if c.Reporter.CloseTimeout > 0 {
		opts = append(opts, hellotrace.WithCloseTimeout(c.Reporter.CloseTimeout))
	}
	if reg != nil {
		opts = append(opts, hellotrace.WithMetrics(hellotrace.NewMetrics(reg)))
	}
	if c.Propagation.TraceHeader != hellotrace.DefaultTraceHeader || c.Propagation.BaggagePrefix != hellotrace.DefaultBaggagePrefix {
		for format, httpHeaders := range map[hellotrace.Format]bool{hellotrace.HTTPHeaders: true, hellotrace.TextMap: false} {
			opts = append(opts, hellotrace.WithCodec(format, &hellotrace.HeaderCodec{
				TraceHeader:   c.Propagation.TraceHeader,
				BaggagePrefix: c.Propagation.BaggagePrefix,
				HTTPHeaders:   httpHeaders,
			}))
		}
	}

	tracer := hellotrace.New(c.ServiceName, append(opts, extra...)...)
	logger.V(1).Info("tracer created",
		"service", c.ServiceName,
		"sampled", c.Sampler.Param > 0,
		"log_spans", c.Reporter.LogSpans,
		"collector", c.Reporter.CollectorEndpoint,
		"otlp", c.Reporter.OTLPEndpoint)
	return tracer, nil
}

func (c *Config) newReporter(logger logr.Logger, reg prometheus.Registerer) (hellotrace.Reporter, error) {
	var reporters []hellotrace.Reporter
	if c.Reporter.LogSpans {
		reporters = append(reporters, hellotrace.NewLoggingReporter(logger))
	}

	remoteOpts := []hellotrace.RemoteReporterOption{
		hellotrace.WithReporterLogger(logger.WithName("reporter")),
	}
	if c.Reporter.QueueSize > 0 {
		remoteOpts = append(remoteOpts, hellotrace.WithQueueSize(c.Reporter.QueueSize))
	}
	if c.Reporter.BufferFlushInterval > 0 {
		remoteOpts = append(remoteOpts, hellotrace.WithFlushInterval(c.Reporter.BufferFlushInterval))
	}
	if reg != nil {
		remoteOpts = append(remoteOpts, hellotrace.WithReporterMetrics(hellotrace.NewMetrics(reg)))
	}

	if c.Reporter.CollectorEndpoint != "" {
		sender := hellotrace.NewHTTPSender(c.Reporter.CollectorEndpoint,
			hellotrace.WithProcess(hellotrace.Process{ServiceName: c.ServiceName}))
		reporters = append(reporters, hellotrace.NewRemoteReporter(sender, remoteOpts...))
	}
	if c.Reporter.OTLPEndpoint != "" {
		sender, err := otlp.New(context.Background(), otlp.Config{
			ServiceName: c.ServiceName,
			Endpoint:    c.Reporter.OTLPEndpoint,
			Insecure:    c.Reporter.OTLPInsecure,
		})
		if err != nil {
			for _, r := range reporters {
				_ = r.Close(context.Background())
			}
			return nil, fmt.Errorf("otlp reporter: %w", err)
		}
		reporters = append(reporters, hellotrace.NewRemoteReporter(sender, remoteOpts...))
	}

	switch len(reporters) {
	case 0:
		return hellotrace.NewNullReporter(), nil
	case 1:
		return reporters[0], nil
	default:
		return hellotrace.NewCompositeReporter(reporters...), nil
	}
}
