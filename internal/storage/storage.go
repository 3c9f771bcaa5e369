// Package storage writes asset records to the time-series database.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/afroash/greenhouse-collector/internal/models"
)

// ErrDatabaseWrite is matched by every WriteError
var ErrDatabaseWrite = errors.New("database write failed")

// ErrRejected marks a write the database refused for good, such as a
// malformed point or a bad token. Rejected writes are not retried.
var ErrRejected = errors.New("write rejected")

// Submitter accepts records for writing. Implementations must be safe for
// concurrent use; every asset goroutine submits through the same one.
type Submitter interface {
	Submit(ctx context.Context, rec *models.Record) error
}

// WriteError reports a record that could not be written after all attempts
type WriteError struct {
	Backend  string
	Attempts int
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s write failed after %d attempt(s): %v", e.Backend, e.Attempts, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrDatabaseWrite) true for every WriteError
func (e *WriteError) Is(target error) bool { return target == ErrDatabaseWrite }
