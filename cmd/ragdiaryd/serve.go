package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Watch the diary tree and serve metrics",
	Long: `Run the daemon: load persisted indexes, watch diary.root for file
changes, keep the tag index and cooccurrence graph current, and expose
/metrics and /healthz on server.metrics_port.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.logger.Sync() //nolint:errcheck

	if err := eng.tags.Start(ctx); err != nil {
		return fmt.Errorf("starting tag index: %w", err)
	}
	defer eng.tags.Stop()
	if err := eng.tags.WaitInit(ctx); err != nil {
		return err
	}
	if err := eng.tags.StartWatch(ctx); err != nil {
		return fmt.Errorf("starting diary watch: %w", err)
	}
	if err := eng.groups.Warm(ctx, eng.embedder); err != nil {
		eng.zlog.Warn("semantic group warmup failed, group enhancement disabled", zap.Error(err))
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", func(c echo.Context) error {
		stats := eng.tags.Stats()
		qHits, qMisses, eHits, eMisses := eng.planner.CacheStats()
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":          "ok",
			"totalTags":       stats.TotalTags,
			"vectorizedTags":  stats.VectorizedTags,
			"pendingVectors":  stats.PendingVectors,
			"cooccurrence":    stats.Cooccurrence,
			"queryCache":      map[string]int64{"hits": qHits, "misses": qMisses},
			"embeddingCache":  map[string]int64{"hits": eHits, "misses": eMisses},
		})
	})

	addr := fmt.Sprintf(":%d", eng.cfg.Server.MetricsPort)
	go func() {
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			eng.zlog.Error("metrics server failed", zap.Error(err))
		}
	}()
	eng.zlog.Info("ragdiaryd serving", zap.String("addr", addr), zap.String("root", eng.cfg.Diary.Root))

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), eng.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		eng.zlog.Warn("metrics server shutdown error", zap.Error(err))
	}

	// Final flush so no dirty shard outlives the process.
	if err := eng.tags.Persist(context.Background()); err != nil {
		eng.zlog.Warn("final persist failed", zap.Error(err))
	}
	return nil
}
