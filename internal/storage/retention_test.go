package storage

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/greenhouse-collector/internal/config"
)

// fakePruner records DeleteOlderThan calls
type fakePruner struct {
	mu      sync.Mutex
	calls   []int
	deleted int64
	err     error
}

func (p *fakePruner) DeleteOlderThan(days int) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, days)
	return p.deleted, p.err
}

func (p *fakePruner) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func retentionConfig(days int, period time.Duration) config.SQLiteConfig {
	return config.SQLiteConfig{RetentionDays: days, CleanupPeriod: period}
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRetentionCleaner_RunNow(t *testing.T) {
	store := setupTestDB(t)

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		mustSubmit(t, store, shelfRecord("1", float64(i), 20, now.AddDate(0, 0, -35).Add(-time.Duration(i)*time.Hour)))
		mustSubmit(t, store, shelfRecord("1", float64(i), 20, now.Add(-time.Duration(i)*time.Hour)))
	}

	cleaner := NewRetentionCleaner(store, retentionConfig(30, time.Hour), zerolog.Nop())
	defer cleaner.Stop()

	// initial cleanup runs on start; RunNow must find nothing left
	waitFor(t, func() bool { return cleaner.Stats().TotalCleanups >= 1 })
	cleaner.RunNow()

	stats, _ := store.GetStorageStats()
	if stats.TotalRows != 10 {
		t.Errorf("Expected 10 rows after cleanup, got %d", stats.TotalRows)
	}

	cleanerStats := cleaner.Stats()
	if cleanerStats.TotalDeleted != 10 {
		t.Errorf("TotalDeleted = %d, want 10", cleanerStats.TotalDeleted)
	}
	if cleanerStats.LastDeleteCount != 0 {
		t.Errorf("LastDeleteCount = %d, want 0", cleanerStats.LastDeleteCount)
	}
}

func TestRetentionCleaner_PeriodicCleanup(t *testing.T) {
	pruner := &fakePruner{deleted: 3}

	cleaner := NewRetentionCleaner(pruner, retentionConfig(7, 10*time.Millisecond), zerolog.Nop())
	defer cleaner.Stop()

	waitFor(t, func() bool { return pruner.callCount() >= 3 })

	pruner.mu.Lock()
	for _, days := range pruner.calls {
		if days != 7 {
			t.Errorf("DeleteOlderThan(%d), want 7", days)
		}
	}
	pruner.mu.Unlock()

	if got := cleaner.Stats().TotalDeleted; got < 9 {
		t.Errorf("TotalDeleted = %d, want >= 9", got)
	}
}

func TestRetentionCleaner_Errors(t *testing.T) {
	pruner := &fakePruner{err: errors.New("disk I/O error")}

	cleaner := NewRetentionCleaner(pruner, retentionConfig(30, time.Hour), zerolog.Nop())
	defer cleaner.Stop()

	waitFor(t, func() bool { return cleaner.Stats().TotalCleanups >= 1 })

	stats := cleaner.Stats()
	if stats.TotalDeleted != 0 {
		t.Errorf("TotalDeleted = %d, want 0", stats.TotalDeleted)
	}
	if stats.LastCleanup.IsZero() {
		t.Error("LastCleanup should be set even when cleanup fails")
	}
}

func TestRetentionCleaner_Disabled(t *testing.T) {
	pruner := &fakePruner{}

	cleaner := NewRetentionCleaner(pruner, retentionConfig(0, 10*time.Millisecond), zerolog.Nop())
	time.Sleep(50 * time.Millisecond)
	cleaner.Stop()

	if n := pruner.callCount(); n != 0 {
		t.Errorf("DeleteOlderThan called %d times with retention disabled", n)
	}
}

func TestRetentionCleaner_InvalidPeriod(t *testing.T) {
	cleaner := NewRetentionCleaner(&fakePruner{}, retentionConfig(30, 0), zerolog.Nop())
	defer cleaner.Stop()

	if cleaner.cleanupPeriod != config.DefaultCleanupPeriod {
		t.Errorf("cleanupPeriod = %v, want %v", cleaner.cleanupPeriod, config.DefaultCleanupPeriod)
	}
}

func TestRetentionCleaner_Stop(t *testing.T) {
	cleaner := NewRetentionCleaner(&fakePruner{}, retentionConfig(30, 10*time.Millisecond), zerolog.Nop())

	done := make(chan struct{})
	go func() {
		cleaner.Stop()
		cleaner.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop() timed out")
	}
}
