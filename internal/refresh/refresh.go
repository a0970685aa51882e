// Package refresh keeps the file list caches current in the background.
package refresh

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/afm-api/internal/config"
	"github.com/sells-group/afm-api/internal/listcache"
	"github.com/sells-group/afm-api/internal/service"
)

// Rebuilder is the part of the service the refresher drives.
type Rebuilder interface {
	Tools() []string
	RebuildAll(ctx context.Context) ([]service.ToolRebuild, error)
	Artifact(tool string) (*listcache.Artifact, error)
}

// Refresher rebuilds every tool's cache on a fixed interval and logs a
// periodic health line.
type Refresher struct {
	svc Rebuilder
	cfg config.ScheduleConfig
}

// New creates a background refresher.
func New(svc Rebuilder, cfg config.ScheduleConfig) *Refresher {
	return &Refresher{svc: svc, cfg: cfg}
}

func minutes(n int, fallback time.Duration) time.Duration {
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Minute
}

// Run starts the refresh loop. It blocks until ctx is cancelled. A rebuild
// runs to completion before the next tick is read, so runs never overlap.
func (r *Refresher) Run(ctx context.Context) {
	rebuildEvery := minutes(r.cfg.RebuildIntervalMins, time.Hour)
	healthEvery := minutes(r.cfg.HealthIntervalMins, 30*time.Minute)

	rebuild := time.NewTicker(rebuildEvery)
	defer rebuild.Stop()
	health := time.NewTicker(healthEvery)
	defer health.Stop()

	r.run(ctx, rebuild.C, health.C)
}

func (r *Refresher) run(ctx context.Context, rebuildC, healthC <-chan time.Time) {
	log := zap.L().With(zap.String("component", "refresh"))
	log.Info("starting cache refresher", zap.Strings("tools", r.svc.Tools()))

	for {
		select {
		case <-ctx.Done():
			log.Info("cache refresher stopped")
			return
		case <-rebuildC:
			r.rebuild(ctx, log)
		case <-healthC:
			r.health(log)
		}
	}
}

func (r *Refresher) rebuild(ctx context.Context, log *zap.Logger) {
	start := time.Now()
	results, err := r.svc.RebuildAll(ctx)
	if err != nil {
		log.Error("refresh: rebuild failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return
	}

	written := 0
	for _, res := range results {
		if res.Error != "" {
			log.Warn("refresh: tool not rebuilt", zap.String("tool", res.Tool), zap.String("error", res.Error))
			continue
		}
		if res.Written {
			written++
		}
	}
	log.Info("refresh: rebuild complete",
		zap.Int("tools", len(results)),
		zap.Int("written", written),
		zap.Duration("elapsed", time.Since(start)),
	)
}

func (r *Refresher) health(log *zap.Logger) {
	for _, tool := range r.svc.Tools() {
		art, err := r.svc.Artifact(tool)
		if err != nil {
			log.Warn("refresh: health", zap.String("tool", tool), zap.Error(err))
			continue
		}
		log.Info("refresh: health",
			zap.String("tool", tool),
			zap.Int("measurements", len(art.Measurements)),
			zap.Time("generated_at", art.Metadata.GeneratedAt),
		)
	}
}
