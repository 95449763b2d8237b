package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/api"
	audithook "github.com/xraph/fundme/audit_hook"
	"github.com/xraph/fundme/observability"
	"github.com/xraph/fundme/types"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		port   string
		deploy bool
		owner  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the fund over HTTP",
		Long: `Serve the deployed fund over HTTP, with Prometheus metrics on /metrics.

With --deploy, or with the memory store, a new fund is deployed first.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, rootOpts, port, owner, deploy)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (defaults to PORT)")
	cmd.Flags().BoolVar(&deploy, "deploy", false, "deploy a new fund before serving")
	cmd.Flags().StringVar(&owner, "owner", "", "owner for --deploy (defaults to FUNDME_OWNER)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *RootOptions, port, owner string, deploy bool) error {
	rt, err := newRuntime(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if port == "" {
		port = rt.env.Port
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	plugins := []fundme.Option{
		fundme.WithPlugin(observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))),
		fundme.WithPlugin(audithook.New(auditRecorder(rt.zl), audithook.WithLogger(rt.logger))),
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var s *session
	if deploy || rt.env.Store == "memory" {
		owner, err = rt.caller(owner)
		if err != nil {
			return err
		}
		s, err = rt.deploy(ctx, owner, types.Dollars(rt.env.MinimumUSD), plugins...)
	} else {
		s, err = rt.attach(ctx, plugins...)
	}
	if err != nil {
		return err
	}
	defer s.Close(context.Background())

	router := api.NewRouter(s.ledger,
		api.WithLogger(rt.zl),
		api.WithMetrics(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})),
		api.WithHealthCheck(s.store.Ping),
	)
	server := newHTTPServer(port, router)

	errc := make(chan error, 1)
	go func() {
		rt.zl.Info().
			Str("fund_id", s.ledger.FundID().String()).
			Str("network", rt.network.Name).
			Msgf("API listening on :%s", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return WrapExitError(ExitCommandError, "http server failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		rt.zl.Error().Err(err).Msg("failed to shutdown server")
	}
	rt.zl.Info().Msg("server stopped")
	return nil
}

func newHTTPServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// auditRecorder writes audit events to the process log.
func auditRecorder(zl zerolog.Logger) audithook.Recorder {
	return audithook.RecorderFunc(func(_ context.Context, ev *audithook.AuditEvent) error {
		level := zerolog.InfoLevel
		if ev.Outcome == audithook.OutcomeFailure {
			level = zerolog.WarnLevel
		}
		zl.WithLevel(level).Str("action", ev.Action).
			Str("resource", ev.Resource).
			Str("resource_id", ev.ResourceID).
			Str("severity", ev.Severity).
			Str("reason", ev.Reason).
			Fields(ev.Metadata).
			Msg("audit")
		return nil
	})
}
