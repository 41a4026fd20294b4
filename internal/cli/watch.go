package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/dbsync/internal/engine"
	"github.com/roach88/dbsync/internal/inbox"
	"github.com/roach88/dbsync/internal/provider"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	MetricsAddr string
	Settle      time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch [inbox-dir]",
		Short: "Import JSON files dropped into an inbox directory",
		Long: `Watch a directory for *.json files and map each one as a batch.

Each file is an envelope {"entity": "Pet", "records": [...]}. A file is
imported once it has been quiet for the settle duration, then renamed
with a .done or .failed suffix. Files already present are imported
first. Runs until interrupted.

When a metrics address is set, Prometheus metrics are served on
/metrics.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := opts.Config.Watch.Dir
			if len(args) == 1 {
				dir = args[0]
			}
			if !cmd.Flags().Changed("metrics-addr") {
				opts.MetricsAddr = opts.Config.MetricsAddr
			}
			if !cmd.Flags().Changed("settle") {
				opts.Settle = opts.Config.Watch.Settle
			}
			return runWatch(opts, dir, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().DurationVar(&opts.Settle, "settle", 0, "how long a file must be quiet before import")

	return cmd
}

func runWatch(opts *WatchOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := opts.Logger

	if dir == "" {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "no inbox directory given (argument or watch.dir)", nil)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("inbox directory not found: %s", dir), err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	engineMetrics, err := engine.NewMetrics(reg)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, "failed to register metrics", err)
	}
	inboxMetrics, err := inbox.NewMetrics(reg)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, "failed to register metrics", err)
	}

	s, err := openSession(opts.RootOptions, formatter,
		provider.WithEngineOptions(engine.WithMetrics(engineMetrics)),
	)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	in := inbox.New(dir, s.provider,
		inbox.WithSettle(opts.Settle),
		inbox.WithLogger(logger),
		inbox.WithMetrics(inboxMetrics),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return in.Run(ctx)
	})
	if opts.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              opts.MetricsAddr,
			Handler:           metricsMux(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("serving metrics", "addr", opts.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, "watch stopped", err)
	}
	logger.Info("inbox stopped", "dir", dir)
	return nil
}

func metricsMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}
