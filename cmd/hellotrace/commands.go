package main

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zoobzio/hellotrace"
	"github.com/zoobzio/hellotrace/config"
	"github.com/zoobzio/hellotrace/internal/lesson"
)

type app struct {
	errOut     io.Writer
	cfg        *config.Config
	registry   *prometheus.Registry
	logger     logr.Logger
	configPath string
	logLevel   string
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{errOut: errOut}

	root := &cobra.Command{
		Use:          "hellotrace",
		Short:        "Traced hello world with formatter and publisher services",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.init()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		a.helloCommand(),
		a.formatterCommand(),
		a.publisherCommand(),
		a.serveCommand(),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg
	a.logger = cfg.Log.NewLogger(a.errOut)
	a.registry = prometheus.NewRegistry()
	return nil
}

// newTracer builds a tracer reporting as service and registers it as the
// process default.
func (a *app) newTracer(service string) (*hellotrace.Tracer, error) {
	cfg := *a.cfg
	cfg.ServiceName = service
	tracer, err := cfg.NewTracer(a.logger.WithName(service), a.registry)
	if err != nil {
		return nil, err
	}
	hellotrace.SetGlobalTracer(tracer)
	return tracer, nil
}

func (a *app) closeTracer(tracer *hellotrace.Tracer) {
	timeout := a.cfg.Reporter.CloseTimeout
	if timeout <= 0 {
		timeout = hellotrace.DefaultCloseTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := tracer.Close(ctx); err != nil {
		a.logger.Error(err, "closing tracer", "service", tracer.ServiceName())
	}
}

func (a *app) helloCommand() *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "hello <name> [greeting]",
		Short: "Say hello to name, optionally with a greeting carried as baggage",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracer, err := a.newTracer(a.cfg.ServiceName)
			if err != nil {
				return err
			}
			defer a.closeTracer(tracer)

			var greeting string
			if len(args) == 2 {
				greeting = args[1]
			}
			formatterAddr, publisherAddr := "", ""
			if remote {
				formatterAddr, publisherAddr = a.cfg.Lesson.FormatterAddr, a.cfg.Lesson.PublisherAddr
			}

			hello := lesson.NewHello(tracer, formatterAddr, publisherAddr, cmd.OutOrStdout())
			_, err = hello.SayHello(cmd.Context(), args[0], greeting)
			return err
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "call the formatter and publisher services instead of working in process")
	return cmd
}

func (a *app) formatterCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "formatter",
		Short: "Run the formatter service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runService(cmd.Context(), "formatter", a.cfg.Lesson.FormatterAddr, func(t *hellotrace.Tracer) http.Handler {
				return lesson.NewFormatter(t)
			})
		},
	}
}

func (a *app) publisherCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "publisher",
		Short: "Run the publisher service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runService(cmd.Context(), "publisher", a.cfg.Lesson.PublisherAddr, func(t *hellotrace.Tracer) http.Handler {
				return lesson.NewPublisher(t, cmd.OutOrStdout())
			})
		},
	}
}

func (a *app) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the formatter and publisher services together",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				return a.runService(ctx, "formatter", a.cfg.Lesson.FormatterAddr, func(t *hellotrace.Tracer) http.Handler {
					return lesson.NewFormatter(t)
				})
			})
			g.Go(func() error {
				return a.runService(ctx, "publisher", a.cfg.Lesson.PublisherAddr, func(t *hellotrace.Tracer) http.Handler {
					return lesson.NewPublisher(t, cmd.OutOrStdout())
				})
			})
			return g.Wait()
		},
	}
}

// runService serves the handler built for service on addr, next to
// /metrics, until ctx is done.
func (a *app) runService(ctx context.Context, service, addr string, handler func(*hellotrace.Tracer) http.Handler) error {
	tracer, err := a.newTracer(service)
	if err != nil {
		return err
	}
	defer a.closeTracer(tracer)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	mux.Handle("/", handler(tracer))

	if err := lesson.ListenAndServe(ctx, addr, mux, a.logger.WithName(service)); err != nil {
		return fmt.Errorf("%s: %w", service, err)
	}
	return nil
}
