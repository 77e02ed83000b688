package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"caevo/internal/logging"
	"caevo/internal/metrics"
	"caevo/internal/storage"
	caevoapi "caevo/pkg/caevo"
)

const (
	benchmarksDir = "benchmarks"
	exportsDir    = "exports"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	storeKind     string
	dbPath        string
	benchmarksDir string
	exportsDir    string
	logLevel      string
	logFormat     string
	metricsAddr   string

	logger *slog.Logger
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{stderr: stderr}
	root := &cobra.Command{
		Use:           "caevoctl",
		Short:         "Evolve cellular automaton rules that act as controllers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := logging.New(logging.Config{
				Level:  opts.logLevel,
				Format: logging.Format(opts.logFormat),
				Output: opts.stderr,
			})
			if err != nil {
				return err
			}
			opts.logger = logger
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.storeKind, "store", storage.DefaultStoreKind(), "store backend: memory|badger|sqlite")
	flags.StringVar(&opts.dbPath, "db-path", "", "store path (defaults per backend)")
	flags.StringVar(&opts.benchmarksDir, "benchmarks-dir", benchmarksDir, "run artifacts directory")
	flags.StringVar(&opts.exportsDir, "exports-dir", exportsDir, "export destination directory")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	flags.StringVar(&opts.logFormat, "log-format", string(logging.FormatAuto), "log format: auto|text|json")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")

	root.AddCommand(
		newRunCmd(opts),
		newBenchmarkCmd(opts),
		newRunsCmd(opts),
		newFitnessCmd(opts),
		newDiagnosticsCmd(opts),
		newTopCmd(opts),
		newLineageCmd(opts),
		newExportCmd(opts),
		newScapeSummaryCmd(opts),
		newEvaluateCmd(opts),
		newReplayCmd(opts),
		newCompareCmd(opts),
		newStepCmd(),
	)
	return root
}

// openClient builds the API client and, when --metrics-addr is set, starts
// the metrics endpoint. The returned func releases both.
func (o *globalOptions) openClient(ctx context.Context) (*caevoapi.Client, func(), error) {
	var reg *prometheus.Registry
	if o.metricsAddr != "" {
		reg = prometheus.NewRegistry()
	}
	apiOpts := caevoapi.Options{
		StoreKind:     o.storeKind,
		DBPath:        o.dbPath,
		BenchmarksDir: o.benchmarksDir,
		ExportsDir:    o.exportsDir,
		Logger:        o.logger,
	}
	if reg != nil {
		apiOpts.MetricsRegisterer = reg
	}
	client, err := caevoapi.New(apiOpts)
	if err != nil {
		return nil, nil, err
	}

	stopMetrics := func() {}
	if reg != nil {
		stopMetrics = o.serveMetrics(ctx, reg)
	}
	return client, func() {
		stopMetrics()
		_ = client.Close()
	}, nil
}

func (o *globalOptions) serveMetrics(ctx context.Context, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: o.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			o.logger.Error("metrics server stopped", "addr", o.metricsAddr, "error", err)
		}
	}()
	o.logger.Info("serving metrics", "addr", o.metricsAddr)
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}
