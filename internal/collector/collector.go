// Package collector runs every asset on its own goroutine, either once or
// on a fixed interval until shutdown.
package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/afroash/greenhouse-collector/internal/asset"
	"github.com/afroash/greenhouse-collector/internal/config"
)

// Collector orchestrates asset read cycles
type Collector struct {
	assets   []asset.Asset
	mode     string
	interval time.Duration
	logger   zerolog.Logger

	mu    sync.RWMutex
	stats map[string]*AssetStats
}

// AssetStats describes the read cycles of one asset
type AssetStats struct {
	Cycles       int64         `json:"cycles"`
	Failures     int64         `json:"failures"`
	LastError    string        `json:"last_error,omitempty"`
	LastCycle    time.Time     `json:"last_cycle,omitempty"`
	LastDuration time.Duration `json:"last_duration"`
}

// New creates a collector for the given assets
func New(assets []asset.Asset, cfg config.CollectionConfig, logger zerolog.Logger) *Collector {
	stats := make(map[string]*AssetStats, len(assets))
	for _, a := range assets {
		stats[a.Name()] = &AssetStats{}
	}
	return &Collector{
		assets:   assets,
		mode:     cfg.Mode,
		interval: cfg.Interval,
		logger:   logger.With().Str("component", "collector").Logger(),
		stats:    stats,
	}
}

// Run starts one goroutine per asset and waits for all of them. In once
// mode every asset reads a single time; in periodic mode each asset reads
// immediately and then every interval until ctx is cancelled. A failing
// asset never stops the others, so Run only returns an error for an
// unknown mode.
func (c *Collector) Run(ctx context.Context) error {
	var run func(context.Context, asset.Asset)
	switch c.mode {
	case config.ModeOnce, "":
		run = c.runOnce
	case config.ModePeriodic:
		if c.interval <= 0 {
			return fmt.Errorf("%w: periodic mode needs a positive interval", config.ErrInvalid)
		}
		run = c.runPeriodic
	default:
		return fmt.Errorf("%w: unknown mode %q", config.ErrInvalid, c.mode)
	}

	c.logger.Info().
		Str("mode", c.mode).
		Int("assets", len(c.assets)).
		Dur("interval", c.interval).
		Msg("Collector started")

	var g errgroup.Group
	for _, a := range c.assets {
		g.Go(func() error {
			run(ctx, a)
			return nil
		})
	}
	err := g.Wait()

	c.logger.Info().Msg("Collector stopped")
	return err
}

func (c *Collector) runOnce(ctx context.Context, a asset.Asset) {
	c.cycle(ctx, a)
}

// runPeriodic reads on a ticker until ctx is cancelled
func (c *Collector) runPeriodic(ctx context.Context, a asset.Asset) {
	c.cycle(ctx, a)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cycle(ctx, a)
		}
	}
}

// cycle runs one ReadSensorData call, recovering panics so a single asset
// cannot take the process down.
func (c *Collector) cycle(ctx context.Context, a asset.Asset) {
	start := time.Now()
	err := safeRead(ctx, a)
	elapsed := time.Since(start)

	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		// shutdown interrupted the cycle
		err = nil
	}

	c.record(a.Name(), start, elapsed, err)

	logger := c.logger.With().Str("asset", a.Name()).Logger()
	if err != nil {
		logger.Error().Err(err).Dur("took", elapsed).Msg("Read cycle failed")
		return
	}
	logger.Debug().Dur("took", elapsed).Msg("Read cycle completed")
}

func safeRead(ctx context.Context, a asset.Asset) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return a.ReadSensorData(ctx)
}

func (c *Collector) record(name string, start time.Time, elapsed time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.stats[name]
	if !ok {
		s = &AssetStats{}
		c.stats[name] = s
	}
	s.Cycles++
	s.LastCycle = start
	s.LastDuration = elapsed
	if err != nil {
		s.Failures++
		s.LastError = err.Error()
	}
}

// Stats returns a snapshot of per-asset statistics keyed by asset name
func (c *Collector) Stats() map[string]AssetStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]AssetStats, len(c.stats))
	for name, s := range c.stats {
		out[name] = *s
	}
	return out
}
