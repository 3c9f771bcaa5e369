package storage

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/greenhouse-collector/internal/config"
)

// Pruner deletes data older than a number of days
type Pruner interface {
	DeleteOlderThan(days int) (int64, error)
}

// RetentionCleaner periodically removes old records from a local store
type RetentionCleaner struct {
	store         Pruner
	logger        zerolog.Logger
	retentionDays int
	cleanupPeriod time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup

	mu              sync.RWMutex
	totalDeleted    int64
	totalCleanups   int64
	lastCleanup     time.Time
	lastDeleteCount int64
}

// RetentionCleanerStats contains statistics about the cleaner
type RetentionCleanerStats struct {
	TotalDeleted    int64     `json:"total_deleted"`
	TotalCleanups   int64     `json:"total_cleanups"`
	LastCleanup     time.Time `json:"last_cleanup,omitempty"`
	LastDeleteCount int64     `json:"last_delete_count"`
	RetentionDays   int       `json:"retention_days"`
}

// NewRetentionCleaner creates and starts a new retention cleaner. A
// non-positive retention disables pruning; the loop still runs so Stop
// behaves the same.
func NewRetentionCleaner(store Pruner, cfg config.SQLiteConfig, logger zerolog.Logger) *RetentionCleaner {
	logger = logger.With().Str("component", "retention").Logger()

	cleanupPeriod := cfg.CleanupPeriod
	if cleanupPeriod <= 0 {
		defaultPeriod := config.DefaultCleanupPeriod
		logger.Warn().
			Dur("provided_period", cleanupPeriod).
			Dur("default_period", defaultPeriod).
			Msg("Invalid cleanup period, using default")
		cleanupPeriod = defaultPeriod
	}

	c := &RetentionCleaner{
		store:         store,
		logger:        logger,
		retentionDays: cfg.RetentionDays,
		cleanupPeriod: cleanupPeriod,
		stopChan:      make(chan struct{}),
	}

	c.wg.Add(1)
	go c.cleanupLoop()

	logger.Info().
		Int("retention_days", cfg.RetentionDays).
		Dur("cleanup_period", cleanupPeriod).
		Msg("RetentionCleaner started")

	return c
}

func (c *RetentionCleaner) cleanupLoop() {
	defer c.wg.Done()

	c.runCleanup()

	ticker := time.NewTicker(c.cleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.stopChan:
			c.logger.Info().Msg("RetentionCleaner stopped")
			return
		}
	}
}

func (c *RetentionCleaner) runCleanup() {
	if c.retentionDays <= 0 {
		return
	}

	deleted, err := c.store.DeleteOlderThan(c.retentionDays)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalCleanups++
	c.lastCleanup = time.Now()

	if err != nil {
		c.logger.Error().Err(err).Msg("Retention cleanup failed")
		return
	}
	c.totalDeleted += deleted
	c.lastDeleteCount = deleted
	if deleted > 0 {
		c.logger.Info().
			Int64("deleted", deleted).
			Int("retention_days", c.retentionDays).
			Msg("Retention cleanup completed")
	} else {
		c.logger.Debug().
			Int("retention_days", c.retentionDays).
			Msg("Retention cleanup completed, no old data to delete")
	}
}

// Stop stops the cleanup loop and waits for it to exit
func (c *RetentionCleaner) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		c.wg.Wait()
	})
}

// Stats returns current cleaner statistics
func (c *RetentionCleaner) Stats() RetentionCleanerStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return RetentionCleanerStats{
		TotalDeleted:    c.totalDeleted,
		TotalCleanups:   c.totalCleanups,
		LastCleanup:     c.lastCleanup,
		LastDeleteCount: c.lastDeleteCount,
		RetentionDays:   c.retentionDays,
	}
}

// RunNow triggers an immediate cleanup
func (c *RetentionCleaner) RunNow() {
	c.runCleanup()
}
