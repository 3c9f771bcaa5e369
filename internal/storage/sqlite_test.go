package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/greenhouse-collector/internal/models"
)

// testLogger creates a logger for tests
func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(zerolog.DebugLevel)
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) *SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath, testLogger())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

// shelfRecord creates a two-field shelf record
func shelfRecord(id string, humidity, temp float64, ts time.Time) *models.Record {
	rec := models.NewRecord("shelf", map[string]string{"shelf_id": id}, ts)
	rec.AddField("humidity", humidity)
	rec.AddField("temperature", temp)
	return rec
}

func mustSubmit(t *testing.T, store *SQLiteStore, rec *models.Record) {
	t.Helper()
	if err := store.Submit(context.Background(), rec); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
}

func TestNewSQLiteStore_InvalidPath(t *testing.T) {
	_, err := NewSQLiteStore("/nonexistent/path/test.db", testLogger())
	if err == nil {
		t.Error("Expected error for invalid path, got nil")
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	store := setupTestDB(t)

	for i := 0; i < 3; i++ {
		if err := store.Migrate(); err != nil {
			t.Fatalf("Migrate #%d failed: %v", i+1, err)
		}
	}
}

func TestSubmit_OneRowPerField(t *testing.T) {
	store := setupTestDB(t)

	mustSubmit(t, store, shelfRecord("1", 55.0, 21.3, time.Now().UTC()))

	stats, err := store.GetStorageStats()
	if err != nil {
		t.Fatalf("GetStorageStats failed: %v", err)
	}
	if stats.TotalRows != 2 {
		t.Errorf("TotalRows = %d, want 2", stats.TotalRows)
	}
	if stats.Measurements != 1 {
		t.Errorf("Measurements = %d, want 1", stats.Measurements)
	}
}

func TestGetRecordsInRange_RoundTrip(t *testing.T) {
	store := setupTestDB(t)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := models.NewRecord("pot", map[string]string{
		"pot_id":     "7",
		"shelf_side": "left",
		"pot_side":   "front",
	}, ts)
	rec.AddField("moisture", 41.5)
	rec.AddField("humidity", 60)
	mustSubmit(t, store, rec)

	got, err := store.GetRecordsInRange(context.Background(), "pot", ts.Add(-time.Minute), ts.Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("GetRecordsInRange failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Got %d records, want 1", len(got))
	}

	r := got[0]
	if r.String() != rec.String() {
		t.Errorf("Record = %s, want %s", r, rec)
	}
	if !r.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", r.Timestamp, ts)
	}
}

func TestGetRecordsInRange_GroupsAndLimits(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		mustSubmit(t, store, shelfRecord("1", 50+float64(i), 20, ts))
		mustSubmit(t, store, shelfRecord("2", 40+float64(i), 19, ts))
	}
	gh := models.NewRecord("greenhouse", nil, base)
	gh.AddField("light_level", 1200)
	mustSubmit(t, store, gh)

	tests := []struct {
		name        string
		measurement string
		limit       int
		want        int
	}{
		{"all shelf records", "shelf", 0, 10},
		{"limited", "shelf", 3, 3},
		{"every measurement", "", 0, 11},
		{"unknown measurement", "plant", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.GetRecordsInRange(ctx, tt.measurement, base, base.Add(time.Hour), tt.limit)
			if err != nil {
				t.Fatalf("GetRecordsInRange failed: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("Got %d records, want %d", len(got), tt.want)
			}
			for i, r := range got {
				if r.Measurement == "shelf" && len(r.Fields) != 2 {
					t.Errorf("record %d has %d fields, want 2", i, len(r.Fields))
				}
				if i > 0 && r.Timestamp.After(got[i-1].Timestamp) {
					t.Errorf("records not newest first at %d", i)
				}
			}
		})
	}
}

func TestDeleteOlderThan(t *testing.T) {
	store := setupTestDB(t)

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		mustSubmit(t, store, shelfRecord("1", 50, 20, now.Add(-time.Duration(i)*time.Hour)))
		mustSubmit(t, store, shelfRecord("1", 50, 20, now.AddDate(0, 0, -35).Add(-time.Duration(i)*time.Hour)))
	}

	deleted, err := store.DeleteOlderThan(30)
	if err != nil {
		t.Fatalf("DeleteOlderThan failed: %v", err)
	}

	// two fields per record
	if deleted != 10 {
		t.Errorf("Deleted %d rows, want 10", deleted)
	}

	stats, _ := store.GetStorageStats()
	if stats.TotalRows != 10 {
		t.Errorf("Expected 10 rows after cleanup, got %d", stats.TotalRows)
	}
	if stats.OldestRecord.Before(now.AddDate(0, 0, -30)) {
		t.Errorf("OldestRecord = %v, should be within retention", stats.OldestRecord)
	}
}

func TestGetStorageStats_Empty(t *testing.T) {
	store := setupTestDB(t)

	stats, err := store.GetStorageStats()
	if err != nil {
		t.Fatalf("GetStorageStats failed: %v", err)
	}
	if stats.TotalRows != 0 {
		t.Errorf("TotalRows = %d, want 0", stats.TotalRows)
	}
	if !stats.OldestRecord.IsZero() {
		t.Errorf("OldestRecord = %v, want zero", stats.OldestRecord)
	}
	if stats.DatabaseSizeMB <= 0 {
		t.Errorf("DatabaseSizeMB = %f, want > 0", stats.DatabaseSizeMB)
	}
}

func TestConcurrentSubmits(t *testing.T) {
	store := setupTestDB(t)

	// Run with: go test -race ./internal/storage/...
	var wg sync.WaitGroup
	now := time.Now().UTC()

	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				rec := shelfRecord("1", float64(i), float64(id), now.Add(time.Duration(id*100+i)*time.Millisecond))
				if err := store.Submit(context.Background(), rec); err != nil {
					t.Errorf("Submit failed: %v", err)
				}
			}
		}(g)
	}
	wg.Wait()

	stats, err := store.GetStorageStats()
	if err != nil {
		t.Fatalf("GetStorageStats failed: %v", err)
	}
	if stats.TotalRows != 200 {
		t.Errorf("TotalRows = %d, want 200", stats.TotalRows)
	}
}

func TestSubmit_CancelledContext(t *testing.T) {
	store := setupTestDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Submit(ctx, shelfRecord("1", 50, 20, time.Now())); err == nil {
		t.Error("Expected error for cancelled context, got nil")
	}
}

func TestClose(t *testing.T) {
	store := setupTestDB(t)

	mustSubmit(t, store, shelfRecord("1", 50, 20, time.Now().UTC()))

	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := store.Submit(context.Background(), shelfRecord("1", 50, 20, time.Now())); err == nil {
		t.Error("Expected error after Close, got nil")
	}
}

func BenchmarkSubmit(b *testing.B) {
	store, err := NewSQLiteStore(filepath.Join(b.TempDir(), "bench.db"), zerolog.Nop())
	if err != nil {
		b.Fatal(err)
	}
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.Submit(ctx, shelfRecord("1", 50, 20, now.Add(time.Duration(i)*time.Millisecond)))
	}
}
