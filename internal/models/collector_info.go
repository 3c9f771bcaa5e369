package models

import (
	"os"
	"time"
)

// CollectorInfo describes the running collector process
type CollectorInfo struct {
	Hostname  string    `json:"hostname"`
	Version   string    `json:"version"`
	Mode      string    `json:"mode"`
	Assets    int       `json:"assets"`
	StartTime time.Time `json:"start_time"`
}

// NewCollectorInfo creates a CollectorInfo with the current time as start time
func NewCollectorInfo(version, mode string, assets int) *CollectorInfo {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &CollectorInfo{
		Hostname:  hostname,
		Version:   version,
		Mode:      mode,
		Assets:    assets,
		StartTime: time.Now(),
	}
}

// Uptime returns the duration since the collector started
func (c *CollectorInfo) Uptime() time.Duration {
	return time.Since(c.StartTime)
}
