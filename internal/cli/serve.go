package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/autotrain/internal/adapters/http/api"
	"github.com/okian/autotrain/internal/adapters/http/swagger"
	service "github.com/okian/autotrain/internal/app"
	"github.com/okian/autotrain/internal/domain/failure"
	"github.com/okian/autotrain/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 30 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func serveCmd(g *globals) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve predictions and accept training runs over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				g.cfg.Serve.Addr = addr
			}
			return serve(cmd.Context(), g)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides serve.addr)")
	return cmd
}

func serve(ctx context.Context, g *globals) error {
	cfg := g.cfg
	log := logger.Get().Named("serve")

	c, err := wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	svc := c.newService(
		service.WithWorkerCount(cfg.Serve.WorkerCount),
		service.WithQueueSize(cfg.Serve.QueueSize),
		service.WithRunTimeout(cfg.Serve.RunTimeout),
		service.WithRetrainInterval(cfg.Serve.RetrainInterval),
	)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	if cfg.Serve.BootstrapOnStart {
		if _, err := svc.CurrentModel(ctx); errors.Is(err, failure.ErrNoModelAvailable) {
			rec, err := svc.SubmitRun(ctx, service.TriggerBootstrap)
			if err != nil {
				log.Warn(ctx, "bootstrap run not queued", logger.Error(err))
			} else {
				log.Info(ctx, "bootstrap run queued", logger.String("run_id", rec.ID))
			}
		}
	}

	go startServiceMetricsUpdater(ctx, svc)

	router := api.NewServer(svc, svc).Router()
	swagger.Register(router)

	srv := &http.Server{
		Addr:              cfg.Serve.Addr,
		Handler:           router,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Serve.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
		return err
	}
	log.Info(ctx, "server stopped")
	return nil
}

// startServiceMetricsUpdater refreshes the queue gauges until ctx ends.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = svc.Stats(ctx)
		}
	}
}
