package models

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// Record is one tagged, timestamped set of readings produced by an asset
// in a single read cycle.
type Record struct {
	Measurement string             `json:"measurement"`
	Tags        map[string]string  `json:"tags"`
	Fields      map[string]float64 `json:"fields"`
	Timestamp   time.Time          `json:"timestamp"`
}

// NewRecord creates an empty record for the given measurement and tags.
// The tags map is copied so callers can reuse theirs.
func NewRecord(measurement string, tags map[string]string, ts time.Time) *Record {
	return &Record{
		Measurement: measurement,
		Tags:        maps.Clone(tags),
		Fields:      make(map[string]float64),
		Timestamp:   ts,
	}
}

// AddField sets a field value on the record
func (r *Record) AddField(name string, value float64) {
	r.Fields[name] = value
}

// IsEmpty reports whether the record carries no fields
func (r *Record) IsEmpty() bool {
	return len(r.Fields) == 0
}

// IsValid checks that the record can be written to a time-series database
func (r *Record) IsValid() bool {
	if r.Measurement == "" {
		return false
	}
	if r.Timestamp.IsZero() {
		return false
	}
	return !r.IsEmpty()
}

// FieldNames returns the field names in sorted order
func (r *Record) FieldNames() []string {
	return slices.Sorted(maps.Keys(r.Fields))
}

// String renders the record in a line-protocol like form, with sorted keys.
func (r *Record) String() string {
	var b strings.Builder
	b.WriteString(r.Measurement)
	for _, k := range slices.Sorted(maps.Keys(r.Tags)) {
		fmt.Fprintf(&b, ",%s=%s", k, r.Tags[k])
	}
	b.WriteByte(' ')
	for i, k := range r.FieldNames() {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%.2f", k, r.Fields[k])
	}
	b.WriteByte(' ')
	b.WriteString(r.Timestamp.Format(time.RFC3339))
	return b.String()
}

// Copy returns a deep copy of the Record
func (r *Record) Copy() *Record {
	if r == nil {
		return nil
	}
	return &Record{
		Measurement: r.Measurement,
		Tags:        maps.Clone(r.Tags),
		Fields:      maps.Clone(r.Fields),
		Timestamp:   r.Timestamp,
	}
}
