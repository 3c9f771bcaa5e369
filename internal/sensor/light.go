package sensor

import (
	"context"
	"fmt"
	"time"
)

const (
	bh1750OneTimeHighRes = 0x20
	// bh1750MeasureTime is the worst-case high resolution conversion time
	bh1750MeasureTime = 180 * time.Millisecond
	bh1750LuxDivisor  = 1.2
)

// LightLevel is a BH1750 ambient light sensor (GY-30/GY-32 boards)
type LightLevel struct {
	name        string
	dev         Transceiver
	measureTime time.Duration
}

// NewLightLevel creates a light sensor on an I2C device handle
func NewLightLevel(name string, dev Transceiver) *LightLevel {
	return &LightLevel{name: name, dev: dev, measureTime: bh1750MeasureTime}
}

func (l *LightLevel) Name() string { return l.name }

// Read triggers a one-time high resolution measurement and returns lux
func (l *LightLevel) Read(ctx context.Context) (float64, error) {
	if err := l.dev.Tx([]byte{bh1750OneTimeHighRes}, nil); err != nil {
		return 0, ioError(l.name, fmt.Errorf("start measurement: %w", err))
	}

	timer := time.NewTimer(l.measureTime)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-timer.C:
	}

	buf := make([]byte, 2)
	if err := l.dev.Tx(nil, buf); err != nil {
		return 0, ioError(l.name, fmt.Errorf("read result: %w", err))
	}
	raw := uint16(buf[0])<<8 | uint16(buf[1])
	return float64(raw) / bh1750LuxDivisor, nil
}
