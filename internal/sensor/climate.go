package sensor

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// dhtMinInterval is the minimum sampling period of the DHT family. Reads
// issued sooner return the cached values.
const dhtMinInterval = 2 * time.Second

// Climate shares one DHT device between a Humidity and a Temperature sensor
type Climate struct {
	model       string
	dev         DHTDevice
	minInterval time.Duration
	now         func() time.Time

	mu          sync.Mutex
	lastRead    time.Time
	temperature float64
	humidity    float64
}

// NewClimate wraps a DHT device of the given model
func NewClimate(model string, dev DHTDevice) *Climate {
	return &Climate{
		model:       model,
		dev:         dev,
		minInterval: dhtMinInterval,
		now:         time.Now,
	}
}

// Read returns temperature (°C) and humidity (%), reusing a reading that is
// younger than the device's sampling interval.
func (c *Climate) Read(ctx context.Context) (float64, float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastRead.IsZero() && c.now().Sub(c.lastRead) < c.minInterval {
		return c.temperature, c.humidity, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	temperature, humidity, err := c.dev.Read()
	if err != nil {
		return 0, 0, err
	}
	if err := validateReading(c.model, temperature, humidity); err != nil {
		return 0, 0, fmt.Errorf("invalid reading: %w", err)
	}

	c.temperature, c.humidity = temperature, humidity
	c.lastRead = c.now()
	return temperature, humidity, nil
}

// Close releases the underlying device
func (c *Climate) Close() error {
	return c.dev.Close()
}

// Humidity reports relative humidity in percent
type Humidity struct {
	name    string
	climate *Climate
}

// NewHumidity creates a humidity sensor on a shared climate device
func NewHumidity(name string, climate *Climate) *Humidity {
	return &Humidity{name: name, climate: climate}
}

func (h *Humidity) Name() string { return h.name }

func (h *Humidity) Read(ctx context.Context) (float64, error) {
	_, humidity, err := h.climate.Read(ctx)
	if err != nil {
		return 0, ioError(h.name, err)
	}
	return humidity, nil
}

// Temperature reports air temperature in °C
type Temperature struct {
	name    string
	climate *Climate
}

// NewTemperature creates a temperature sensor on a shared climate device
func NewTemperature(name string, climate *Climate) *Temperature {
	return &Temperature{name: name, climate: climate}
}

func (t *Temperature) Name() string { return t.name }

func (t *Temperature) Read(ctx context.Context) (float64, error) {
	temperature, _, err := t.climate.Read(ctx)
	if err != nil {
		return 0, ioError(t.name, err)
	}
	return temperature, nil
}
