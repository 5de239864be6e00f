// Package config loads hellotrace settings with viper and assembles a
// Tracer from them.
//
// Settings come from an optional YAML file, then HELLOTRACE_* environment
// variables, e.g. HELLOTRACE_REPORTER_COLLECTOR_ENDPOINT.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "HELLOTRACE"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid")

// Config is the full configuration of a traced service.
type Config struct {
	ServiceName string            `mapstructure:"service_name"`
	Sampler     SamplerConfig     `mapstructure:"sampler"`
	Reporter    ReporterConfig    `mapstructure:"reporter"`
	Propagation PropagationConfig `mapstructure:"propagation"`
	Log         LogConfig         `mapstructure:"log"`
	Lesson      LessonConfig      `mapstructure:"lesson"`
}

// SamplerConfig selects the root span sampler.
type SamplerConfig struct {
	Type  string  `mapstructure:"type"`  // const
	Param float64 `mapstructure:"param"` // const: 1 samples every trace, 0 none
}

// ReporterConfig selects where finished spans go. Every configured
// destination receives every span.
type ReporterConfig struct {
	LogSpans            bool          `mapstructure:"log_spans"`
	QueueSize           int           `mapstructure:"queue_size"`
	BufferFlushInterval time.Duration `mapstructure:"buffer_flush_interval"`
	CloseTimeout        time.Duration `mapstructure:"close_timeout"`
	CollectorEndpoint   string        `mapstructure:"collector_endpoint"` // JSON batches over HTTP
	OTLPEndpoint        string        `mapstructure:"otlp_endpoint"`      // host:port of an OTLP/HTTP collector
	OTLPInsecure        bool          `mapstructure:"otlp_insecure"`
}

// PropagationConfig names the carrier keys.
type PropagationConfig struct {
	TraceHeader   string `mapstructure:"trace_header"`
	BaggagePrefix string `mapstructure:"baggage_prefix"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug | info | warn | error
	Format string `mapstructure:"format"` // json | text
}

// LessonConfig holds the addresses of the greeting services.
type LessonConfig struct {
	FormatterAddr string `mapstructure:"formatter_addr"`
	PublisherAddr string `mapstructure:"publisher_addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "hello-world")
	v.SetDefault("sampler.type", "const")
	v.SetDefault("sampler.param", 1)
	v.SetDefault("reporter.log_spans", true)
	v.SetDefault("reporter.queue_size", 1000)
	v.SetDefault("reporter.buffer_flush_interval", "1s")
	v.SetDefault("reporter.close_timeout", "5s")
	v.SetDefault("reporter.collector_endpoint", "")
	v.SetDefault("reporter.otlp_endpoint", "")
	v.SetDefault("reporter.otlp_insecure", true)
	v.SetDefault("propagation.trace_header", "trace-context")
	v.SetDefault("propagation.baggage_prefix", "baggage-")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("lesson.formatter_addr", "localhost:8081")
	v.SetDefault("lesson.publisher_addr", "localhost:8082")
}

// Load reads the configuration file at path, when path is not empty, and
// applies environment overrides and defaults.
func Load(path string) (*Config, error) {
	return load(viper.New(), path)
}

func load(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings NewTracer depends on.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("%w: service_name is required", ErrInvalidConfig)
	}
	if c.Sampler.Type != "const" {
		return fmt.Errorf("%w: unknown sampler type %q", ErrInvalidConfig, c.Sampler.Type)
	}
	if c.Reporter.QueueSize < 0 {
		return fmt.Errorf("%w: reporter.queue_size must not be negative", ErrInvalidConfig)
	}
	if c.Propagation.TraceHeader == "" {
		return fmt.Errorf("%w: propagation.trace_header is required", ErrInvalidConfig)
	}
	if c.Propagation.BaggagePrefix == "" {
		return fmt.Errorf("%w: propagation.baggage_prefix is required", ErrInvalidConfig)
	}
	if strings.HasPrefix(strings.ToLower(c.Propagation.TraceHeader), strings.ToLower(c.Propagation.BaggagePrefix)) {
		return fmt.Errorf("%w: propagation.baggage_prefix %q would match trace header %q",
			ErrInvalidConfig, c.Propagation.BaggagePrefix, c.Propagation.TraceHeader)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}
