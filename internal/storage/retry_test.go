package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/greenhouse-collector/internal/config"
	"github.com/afroash/greenhouse-collector/internal/models"
)

// flakySubmitter fails the first failures calls
type flakySubmitter struct {
	mu       sync.Mutex
	failures int
	calls    int
	records  []*models.Record
}

func (f *flakySubmitter) Submit(_ context.Context, rec *models.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection refused")
	}
	f.records = append(f.records, rec.Copy())
	return nil
}

func testRetryConfig(attempts int) config.RetryConfig {
	return config.RetryConfig{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func TestRetrier_SucceedsAfterRetries(t *testing.T) {
	next := &flakySubmitter{failures: 2}
	r := NewRetrier(next, "influxdb", testRetryConfig(5), zerolog.Nop())

	if err := r.Submit(context.Background(), shelfRecord("1", 55, 21.3, time.Now())); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if next.calls != 3 {
		t.Errorf("calls = %d, want 3", next.calls)
	}
	stats := r.Stats()
	if stats.Submitted != 1 || stats.Retried != 2 || stats.Failed != 0 {
		t.Errorf("Stats = %+v, want 1 submitted, 2 retried", stats)
	}
}

func TestRetrier_GivesUp(t *testing.T) {
	next := &flakySubmitter{failures: 100}
	r := NewRetrier(next, "sqlite", testRetryConfig(3), zerolog.Nop())

	err := r.Submit(context.Background(), shelfRecord("1", 55, 21.3, time.Now()))
	if !errors.Is(err, ErrDatabaseWrite) {
		t.Fatalf("error = %v, want ErrDatabaseWrite", err)
	}

	var we *WriteError
	if !errors.As(err, &we) {
		t.Fatalf("error %T is not a *WriteError", err)
	}
	if we.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", we.Attempts)
	}
	if we.Backend != "sqlite" {
		t.Errorf("Backend = %q, want sqlite", we.Backend)
	}
	if next.calls != 3 {
		t.Errorf("calls = %d, want 3", next.calls)
	}
	if got := r.Stats().Failed; got != 1 {
		t.Errorf("Failed = %d, want 1", got)
	}
}

// rejectingSubmitter refuses every record outright
type rejectingSubmitter struct{ calls int }

func (r *rejectingSubmitter) Submit(_ context.Context, _ *models.Record) error {
	r.calls++
	return fmt.Errorf("%w: status 401: unauthorized access", ErrRejected)
}

func TestRetrier_RejectedNotRetried(t *testing.T) {
	next := &rejectingSubmitter{}
	r := NewRetrier(next, "influxdb", testRetryConfig(5), zerolog.Nop())

	err := r.Submit(context.Background(), shelfRecord("1", 55, 21.3, time.Now()))
	if !errors.Is(err, ErrDatabaseWrite) || !errors.Is(err, ErrRejected) {
		t.Fatalf("error = %v, want ErrDatabaseWrite wrapping ErrRejected", err)
	}

	var we *WriteError
	if errors.As(err, &we) && we.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", we.Attempts)
	}
	if next.calls != 1 {
		t.Errorf("calls = %d, want 1", next.calls)
	}
	if stats := r.Stats(); stats.Retried != 0 || stats.Failed != 1 {
		t.Errorf("Stats = %+v, want 0 retried, 1 failed", stats)
	}
}

func TestRetrier_SingleAttempt(t *testing.T) {
	next := &flakySubmitter{failures: 1}
	r := NewRetrier(next, "influxdb", testRetryConfig(1), zerolog.Nop())

	if err := r.Submit(context.Background(), shelfRecord("1", 55, 21.3, time.Now())); err == nil {
		t.Fatal("Expected error with a single attempt, got nil")
	}
	if next.calls != 1 {
		t.Errorf("calls = %d, want 1", next.calls)
	}
}

func TestRetrier_InvalidRecord(t *testing.T) {
	next := &flakySubmitter{}
	r := NewRetrier(next, "influxdb", testRetryConfig(3), zerolog.Nop())

	empty := models.NewRecord("shelf", map[string]string{"shelf_id": "1"}, time.Now())
	if err := r.Submit(context.Background(), empty); !errors.Is(err, ErrDatabaseWrite) {
		t.Fatalf("error = %v, want ErrDatabaseWrite", err)
	}
	if next.calls != 0 {
		t.Errorf("invalid record reached the backend %d times", next.calls)
	}
}

func TestRetrier_CancelledContext(t *testing.T) {
	next := &flakySubmitter{failures: 100}
	cfg := config.RetryConfig{MaxAttempts: 50, InitialInterval: time.Hour, MaxInterval: time.Hour}
	r := NewRetrier(next, "influxdb", cfg, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	done := make(chan error, 1)
	go func() { done <- r.Submit(ctx, shelfRecord("1", 55, 21.3, time.Now())) }()

	select {
	case err := <-done:
		if !errors.Is(err, ErrDatabaseWrite) {
			t.Errorf("error = %v, want ErrDatabaseWrite", err)
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Submit did not return after cancellation")
	}
}
