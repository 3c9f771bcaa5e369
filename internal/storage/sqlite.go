package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/afroash/greenhouse-collector/internal/models"
)

// timeLayout is fixed width so that recorded_at sorts lexically
const timeLayout = "2006-01-02 15:04:05.000"

// SQLiteStore keeps records in a local SQLite database, one row per field
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

var _ Submitter = (*SQLiteStore)(nil)

// StorageStats contains information about the database
type StorageStats struct {
	TotalRows      int64     `json:"total_rows"`
	Measurements   int       `json:"measurements"`
	OldestRecord   time.Time `json:"oldest_record,omitempty"`
	NewestRecord   time.Time `json:"newest_record,omitempty"`
	DatabaseSizeMB float64   `json:"database_size_mb"`
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	// single writer; asset goroutines queue on the pool
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info().Str("path", dbPath).Msg("SQLite store initialized")

	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate creates the database schema if it doesn't exist
func (s *SQLiteStore) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		measurement TEXT NOT NULL,
		tags TEXT NOT NULL,
		field TEXT NOT NULL,
		value REAL NOT NULL,
		recorded_at TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_records_measurement_time ON records(measurement, recorded_at DESC);
	CREATE INDEX IF NOT EXISTS idx_records_time ON records(recorded_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Debug().Msg("Database schema migrated")
	return nil
}

// Submit stores every field of rec in a single transaction
func (s *SQLiteStore) Submit(ctx context.Context, rec *models.Record) error {
	tags, err := encodeTags(rec.Tags)
	if err != nil {
		return err
	}
	recordedAt := rec.Timestamp.UTC().Format(timeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (measurement, tags, field, value, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, field := range rec.FieldNames() {
		if _, err := stmt.ExecContext(ctx, rec.Measurement, tags, field, rec.Fields[field], recordedAt); err != nil {
			return fmt.Errorf("failed to insert field %s: %w", field, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug().Str("record", rec.String()).Msg("Record stored")
	return nil
}

// GetRecordsInRange returns up to limit records of a measurement recorded
// in [start, end], newest first. An empty measurement matches all.
func (s *SQLiteStore) GetRecordsInRange(ctx context.Context, measurement string, start, end time.Time, limit int) ([]*models.Record, error) {
	query := `
		SELECT measurement, tags, field, value, recorded_at
		FROM records
		WHERE (? = '' OR measurement = ?) AND recorded_at BETWEEN ? AND ?
		ORDER BY recorded_at DESC, measurement, tags, id
	`
	rows, err := s.db.QueryContext(ctx, query,
		measurement, measurement,
		start.UTC().Format(timeLayout),
		end.UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var (
		records []*models.Record
		current *models.Record
		key     string
	)
	for rows.Next() {
		var m, tags, field, recordedAt string
		var value float64
		if err := rows.Scan(&m, &tags, &field, &value, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		// consecutive rows with the same key belong to one record
		if k := m + "\x00" + tags + "\x00" + recordedAt; current == nil || k != key {
			if limit > 0 && len(records) == limit {
				break
			}
			ts, err := time.Parse(timeLayout, recordedAt)
			if err != nil {
				return nil, fmt.Errorf("failed to parse recorded_at: %w", err)
			}
			decoded, err := decodeTags(tags)
			if err != nil {
				return nil, err
			}
			current = models.NewRecord(m, decoded, ts)
			records = append(records, current)
			key = k
		}
		current.AddField(field, value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// DeleteOlderThan removes rows recorded more than days ago
func (s *SQLiteStore) DeleteOlderThan(days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	result, err := s.db.Exec(
		"DELETE FROM records WHERE recorded_at < ?",
		cutoff.Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old records: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	s.logger.Info().
		Int("days", days).
		Int64("deleted", deleted).
		Time("cutoff", cutoff).
		Msg("Deleted old records")

	return deleted, nil
}

// GetStorageStats returns statistics about the database
func (s *SQLiteStore) GetStorageStats() (*StorageStats, error) {
	stats := &StorageStats{}

	err := s.db.QueryRow("SELECT COUNT(*), COUNT(DISTINCT measurement) FROM records").
		Scan(&stats.TotalRows, &stats.Measurements)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}

	if stats.TotalRows > 0 {
		var oldest, newest string
		err = s.db.QueryRow("SELECT MIN(recorded_at), MAX(recorded_at) FROM records").Scan(&oldest, &newest)
		if err != nil {
			return nil, fmt.Errorf("failed to get timestamp range: %w", err)
		}
		stats.OldestRecord, _ = time.Parse(timeLayout, oldest)
		stats.NewestRecord, _ = time.Parse(timeLayout, newest)
	}

	var pageCount, pageSize int64
	s.db.QueryRow("PRAGMA page_count").Scan(&pageCount)
	s.db.QueryRow("PRAGMA page_size").Scan(&pageSize)
	stats.DatabaseSizeMB = float64(pageCount*pageSize) / (1024 * 1024)

	return stats, nil
}

// encodeTags renders tags as JSON; map keys are sorted by encoding/json so
// equal tag sets produce equal strings.
func encodeTags(tags map[string]string) (string, error) {
	if len(tags) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to encode tags: %w", err)
	}
	return string(b), nil
}

func decodeTags(s string) (map[string]string, error) {
	tags := make(map[string]string)
	if err := json.Unmarshal([]byte(s), &tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	return tags, nil
}
