// Package sensor contains the hardware drivers the collector reads from:
// DHT humidity/temperature devices, MCP3008 analog inputs (soil moisture,
// NDVI photodiodes) and the BH1750 light sensor.
package sensor

import (
	"context"
	"errors"
	"fmt"
)

// ErrHardwareIO is matched by every error a sensor returns when its bus or
// pin is unreachable or the device returns invalid data.
var ErrHardwareIO = errors.New("hardware i/o error")

// Sensor is a single physical input exposing one blocking read.
type Sensor interface {
	// Name returns the configured sensor name
	Name() string

	// Read performs one measurement and returns the value in the sensor's
	// unit (percent, °C, lux, or a dimensionless index)
	Read(ctx context.Context) (float64, error)
}

// IOError reports a failed read of a named sensor
type IOError struct {
	Sensor string
	Err    error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("sensor %s: %v", e.Sensor, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrHardwareIO) true for every IOError
func (e *IOError) Is(target error) bool { return target == ErrHardwareIO }

// ioError wraps err for the named sensor. Cancellation is passed through
// unchanged since it is not a hardware fault.
func ioError(sensor string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &IOError{Sensor: sensor, Err: err}
}
