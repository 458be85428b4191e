package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/checkout-lane/internal/app"
	"github.com/noah-isme/checkout-lane/internal/config"
	"github.com/noah-isme/checkout-lane/internal/health"
	"github.com/noah-isme/checkout-lane/internal/obs"
	"github.com/noah-isme/checkout-lane/internal/ops"
	"github.com/noah-isme/checkout-lane/internal/receipt"
	"github.com/noah-isme/checkout-lane/internal/resilience"
	"github.com/noah-isme/checkout-lane/internal/scenario"
	"github.com/noah-isme/checkout-lane/internal/store"
)

const shutdownTimeout = 5 * time.Second

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Serve  bool
	Stream bool

	// Config replaces environment loading when set (for testing).
	Config *config.Config
	// Listening receives the ops address once --serve is accepting connections.
	Listening chan<- string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}
	return newRunCommand(opts)
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a checkout scenario",
		Long: `Stocks the catalog, opens the lanes and queues the customers described in the
scenario file, then settles every lane and prints the report.

Example:
  checkout run ./scenarios/saturday.yaml
  checkout run --format json --stream ./scenarios/saturday.yaml
  checkout run --serve ./scenarios/saturday.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(cmd, opts, args[0])
		},
	}
	cmd.Flags().BoolVar(&opts.Serve, "serve", false, "keep serving the ops API after the run")
	cmd.Flags().BoolVar(&opts.Stream, "stream", false, "print receipts as they are issued instead of the final report")
	return cmd
}

func runScenario(cmd *cobra.Command, opts *RunOptions, path string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded
	}

	level := cfg.LogLevel
	if opts.Verbose {
		level = "debug"
	}
	logger := obs.NewLoggerTo(cmd.ErrOrStderr(), cfg.LogFormat, level).With().Str("env", cfg.AppEnv).Logger()
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)
	resilience.MustRegisterMetrics(cfg.MetricsNamespace, nil)

	shutdownTracer, err := obs.InitTracer(ctx, obs.TracingConfig{
		ServiceName:   "checkout",
		Endpoint:      cfg.OTelEndpoint,
		Exporter:      cfg.OTelExporter,
		SamplingRatio: cfg.OTelSampling,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
		shutdownTracer = nil
	}
	defer func() {
		if shutdownTracer == nil {
			return
		}
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error().Err(err).Msg("shutdown tracer")
		}
	}()

	sc, err := scenario.LoadFile(path)
	if err != nil {
		return err
	}

	deps, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Error().Err(err).Msg("close dependencies")
		}
	}()

	engineOpts, err := deps.EngineOptions()
	if err != nil {
		return err
	}
	var extra []receipt.Sink
	if opts.Stream {
		extra = append(extra, streamSink(opts.Format, cmd.OutOrStdout()))
	}
	runner := scenario.Runner{
		Catalog:       deps.Catalog,
		Sink:          deps.Sink(extra...),
		Logger:        logger,
		EngineOptions: engineOpts,
		StoreOptions:  deps.StoreOptions(),
	}

	res, runErr := runner.Run(ctx, sc)
	if res == nil {
		return runErr
	}
	if !opts.Stream {
		if err := writeReport(cmd.OutOrStdout(), opts.Format, res.Report); err != nil {
			return errors.Join(runErr, err)
		}
	}
	if runErr != nil {
		return runErr
	}
	if !opts.Serve {
		return nil
	}
	return serve(ctx, cfg, deps, res.Store, logger, opts.Listening)
}

func streamSink(format string, w io.Writer) receipt.Sink {
	if format == "json" {
		return receipt.NewJSONSink(w)
	}
	return receipt.NewWriterSink(w)
}

func writeReport(w io.Writer, format string, report scenario.Report) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	_, err := io.WriteString(w, report.Text())
	return err
}

// serve exposes the ops API for st until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, deps *app.Dependencies, st *store.Store, logger zerolog.Logger, listening chan<- string) error {
	handler := ops.NewRouter(ops.Config{
		Store:     st,
		Receipts:  deps.Receipts,
		Health:    health.Handler{Probes: deps.Probes()},
		Logger:    logger.With().Str("component", "ops").Logger(),
		Metrics:   obs.NewHTTPMetrics(cfg.MetricsNamespace, nil, nil),
		Tracing:   cfg.OTelExporter != "none",
		RateLimit: deps.RateLimit(),
	})
	ln, err := net.Listen("tcp", cfg.OpsAddr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.OpsAddr(), err)
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	health.SetReady(true)
	logger.Info().Str("addr", ln.Addr().String()).Msg("ops server listening")
	if listening != nil {
		listening <- ln.Addr().String()
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	health.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown ops server: %w", err)
	}
	logger.Info().Msg("ops server stopped")
	return nil
}
