// Package asset groups sensors by the physical location they monitor and
// turns one read of every sensor into one tagged record.
package asset

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/greenhouse-collector/internal/config"
	"github.com/afroash/greenhouse-collector/internal/models"
	"github.com/afroash/greenhouse-collector/internal/sensor"
	"github.com/afroash/greenhouse-collector/internal/storage"
)

// Asset is a monitored location that reads its sensors on demand
type Asset interface {
	Name() string
	ReadSensorData(ctx context.Context) error
}

// Input binds a sensor to the record field its value is stored under
type Input struct {
	Field  string
	Sensor sensor.Sensor
}

// State is the lifecycle position of an asset
type State int32

const (
	StateConstructed State = iota
	StateReading
	StateDone
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateReading:
		return "reading"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// base implements ReadSensorData for every asset kind. The kinds differ
// only in measurement name and tags.
type base struct {
	name        string
	measurement string
	tags        map[string]string
	inputs      []Input
	policy      config.ErrorPolicy
	sink        storage.Submitter
	logger      zerolog.Logger
	now         func() time.Time
	state       atomic.Int32
}

func newBase(name, measurement string, tags map[string]string, inputs []Input, policy config.ErrorPolicy, sink storage.Submitter, logger zerolog.Logger) *base {
	return &base{
		name:        name,
		measurement: measurement,
		tags:        tags,
		inputs:      inputs,
		policy:      policy,
		sink:        sink,
		logger:      logger.With().Str("asset", name).Logger(),
		now:         time.Now,
	}
}

// Name returns the asset's name, e.g. "shelf-1"
func (b *base) Name() string { return b.name }

// State returns where the asset is in its read cycle
func (b *base) State() State { return State(b.state.Load()) }

// Tags returns a copy of the tags attached to every record
func (b *base) Tags() map[string]string {
	return maps.Clone(b.tags)
}

// ReadSensorData reads every sensor once and submits a single record
// holding one field per sensor that was read successfully.
//
// Under PolicySkipAndLog a failed sensor is logged and left out of the
// record; if no sensor could be read nothing is submitted. Under
// PolicyAbort the first failure ends the cycle and is returned. A record
// the database rejects is returned as a *storage.WriteError.
func (b *base) ReadSensorData(ctx context.Context) error {
	b.state.Store(int32(StateReading))
	defer b.state.Store(int32(StateDone))

	if len(b.inputs) == 0 {
		b.logger.Debug().Msg("No sensors attached, nothing to submit")
		return nil
	}

	rec := models.NewRecord(b.measurement, b.tags, b.now().UTC())
	for _, in := range b.inputs {
		value, err := in.Sensor.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if b.policy == config.PolicyAbort {
				return fmt.Errorf("%s: %w", b.name, err)
			}
			b.logger.Error().
				Err(err).
				Str("sensor", in.Sensor.Name()).
				Str("field", in.Field).
				Msg("Failed to read sensor, skipping")
			continue
		}
		rec.AddField(in.Field, value)
	}

	if rec.IsEmpty() {
		b.logger.Warn().Int("sensors", len(b.inputs)).Msg("Every sensor failed, nothing submitted")
		return nil
	}

	if err := b.sink.Submit(ctx, rec); err != nil {
		var we *storage.WriteError
		if !errors.As(err, &we) {
			err = &storage.WriteError{Backend: "database", Attempts: 1, Err: err}
		}
		return fmt.Errorf("%s: %w", b.name, err)
	}

	b.logger.Info().Msgf("Submitted record: %s", rec.String())
	return nil
}
