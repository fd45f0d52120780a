package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"citybuilder/internal/adapters/exports"
	"citybuilder/internal/adapters/httpapi"
	"citybuilder/internal/core"
	"citybuilder/internal/render"
	"citybuilder/internal/weather"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().String("listen", "", "listen address, overrides listen_addr")
	return cmd
}

func (a *app) weatherSource() *weather.CachedSource {
	client := weather.NewClient(
		weather.WithForecastURL(a.cfg.Weather.ForecastURL),
		weather.WithGeocodeURL(a.cfg.Weather.GeocodeURL),
		weather.WithLocator(a.cfg.Locator()),
		weather.WithLogger(a.logger.Named("weather")),
	)
	return weather.NewCachedSource(client, a.cfg.Weather.CacheSize, a.cfg.Weather.CacheTTL, a.logger.Named("weather"))
}

func (a *app) serve(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := core.NewPrometheusRecorder(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	rt, err := openRuntime(ctx, a.cfg, a.logger, core.WithMetrics(core.MultiRecorder{recorder, core.NewExpvarMetricsRecorder("")}))
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	worker := exports.NewWorker(rt.store, rt.blobs, exports.WithLogger(a.logger.Named("exports")))
	worker.Start()

	source := a.weatherSource()
	scheduler := cron.New()
	if a.cfg.Weather.Refresh != "" {
		if _, err := scheduler.AddFunc(a.cfg.Weather.Refresh, func() {
			refreshCtx, cancel := context.WithTimeout(ctx, time.Minute)
			defer cancel()
			n, err := source.Refresh(refreshCtx)
			if err != nil {
				a.logger.Warn("weather refresh incomplete", zap.Int("refreshed", n), zap.Error(err))
				return
			}
			a.logger.Debug("weather refreshed", zap.Int("refreshed", n))
		}); err != nil {
			return fmt.Errorf("schedule weather refresh: %w", err)
		}
	}
	scheduler.Start()

	api := httpapi.New(httpapi.Deps{
		Store:       rt.store,
		Weather:     source,
		Exports:     worker,
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Vars:        expvar.Handler(),
		Logger:      a.logger.Named("http"),
		Render:      render.DefaultOptions(),
		CORSOrigins: a.cfg.CORSOrigins,
	})
	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", zap.String("addr", a.cfg.ListenAddr), zap.Int("houses", rt.store.Len()))
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		if errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown", zap.Error(err))
	}
	<-scheduler.Stop().Done()
	if err := worker.Stop(shutdownCtx); err != nil {
		a.logger.Warn("export worker shutdown", zap.Error(err))
	}
	a.logger.Info("stopped")
	return serveErr
}
