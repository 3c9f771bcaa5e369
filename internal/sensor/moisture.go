package sensor

import (
	"context"
	"fmt"
)

// Moisture is a capacitive soil sensor on an ADC channel. The raw value is
// mapped linearly from dry (0%) to wet (100%) and clamped.
type Moisture struct {
	name    string
	adc     ADC
	channel int
	dry     int
	wet     int
}

// NewMoisture creates a soil moisture sensor with a two-point calibration
func NewMoisture(name string, adc ADC, channel, dry, wet int) *Moisture {
	return &Moisture{name: name, adc: adc, channel: channel, dry: dry, wet: wet}
}

func (m *Moisture) Name() string { return m.name }

func (m *Moisture) Read(ctx context.Context) (float64, error) {
	raw, err := m.adc.ReadChannel(ctx, m.channel)
	if err != nil {
		return 0, ioError(m.name, err)
	}
	if raw < 0 || raw > MCP3008MaxValue {
		return 0, ioError(m.name, fmt.Errorf("raw value %d out of range", raw))
	}

	pct := float64(m.dry-raw) / float64(m.dry-m.wet) * 100
	return min(max(pct, 0), 100), nil
}
