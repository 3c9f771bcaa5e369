package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	ihttp "github.com/influxdata/influxdb-client-go/v2/api/http"
	"github.com/rs/zerolog"

	"github.com/afroash/greenhouse-collector/internal/config"
	"github.com/afroash/greenhouse-collector/internal/models"
)

// InfluxSink writes records to an InfluxDB v2 bucket, one point per record.
// Writes are blocking so failures reach the caller.
type InfluxSink struct {
	client influxdb2.Client
	writer api.WriteAPIBlocking
	bucket string
	logger zerolog.Logger
}

var _ Submitter = (*InfluxSink)(nil)

// NewInfluxSink creates a client for the configured server. No connection
// is made until the first write or Ping.
func NewInfluxSink(cfg config.InfluxDBConfig, logger zerolog.Logger) *InfluxSink {
	timeout := max(uint(cfg.Timeout/time.Second), 1)
	opts := influxdb2.DefaultOptions().SetHTTPRequestTimeout(timeout)
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	logger.Info().
		Str("url", cfg.URL).
		Str("org", cfg.Org).
		Str("bucket", cfg.Bucket).
		Msg("InfluxDB sink created")

	return &InfluxSink{
		client: client,
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		bucket: cfg.Bucket,
		logger: logger,
	}
}

// Ping checks that the server is reachable
func (s *InfluxSink) Ping(ctx context.Context) error {
	ok, err := s.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping influxdb: %w", err)
	}
	if !ok {
		return errors.New("ping influxdb: server not ready")
	}
	return nil
}

// Submit writes one record as a point
func (s *InfluxSink) Submit(ctx context.Context, rec *models.Record) error {
	fields := make(map[string]interface{}, len(rec.Fields))
	for k, v := range rec.Fields {
		fields[k] = v
	}
	p := influxdb2.NewPoint(rec.Measurement, rec.Tags, fields, rec.Timestamp)

	if err := s.writer.WritePoint(ctx, p); err != nil {
		var herr *ihttp.Error
		if errors.As(err, &herr) && rejectedStatus(herr.StatusCode) {
			return fmt.Errorf("%w: bucket %s: status %d: %w", ErrRejected, s.bucket, herr.StatusCode, err)
		}
		return fmt.Errorf("write point to bucket %s: %w", s.bucket, err)
	}
	s.logger.Debug().Str("record", rec.String()).Msg("Point written")
	return nil
}

// rejectedStatus reports client errors that a retry cannot fix
func rejectedStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return code >= 400 && code < 500
}

// Close releases the HTTP client
func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}
