package sensor

import (
	"errors"
	"fmt"
	"io"

	"github.com/afroash/greenhouse-collector/internal/config"
)

// Set holds every configured sensor, constructed once at startup
type Set struct {
	sensors map[string]Sensor
	closers []io.Closer
}

// Get returns the sensor with the given name
func (s *Set) Get(name string) (Sensor, bool) {
	sn, ok := s.sensors[name]
	return sn, ok
}

// Len returns the number of sensors in the set
func (s *Set) Len() int {
	return len(s.sensors)
}

// Close releases the devices opened for the set
func (s *Set) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// builder shares devices between sensors while a Set is constructed
type builder struct {
	hw       Hardware
	pins     PinProvider
	set      *Set
	climates map[int]*Climate
	models   map[int]string
	adc      ADC
}

// Build constructs every configured sensor. Humidity and temperature
// sensors on the same pin share one DHT device, and all analog sensors share
// one MCP3008. Configuration problems wrap config.ErrInvalid; failures to
// open hardware are returned as is.
func Build(cfgs []config.SensorConfig, hw Hardware, pins PinProvider) (*Set, error) {
	b := &builder{
		hw:       hw,
		pins:     pins,
		set:      &Set{sensors: make(map[string]Sensor, len(cfgs))},
		climates: make(map[int]*Climate),
		models:   make(map[int]string),
	}

	for _, c := range cfgs {
		if _, dup := b.set.sensors[c.Name]; dup {
			b.set.Close()
			return nil, fmt.Errorf("%w: duplicate sensor name %q", config.ErrInvalid, c.Name)
		}
		s, err := b.build(c)
		if err != nil {
			b.set.Close()
			return nil, fmt.Errorf("sensor %q: %w", c.Name, err)
		}
		b.set.sensors[c.Name] = s
	}
	return b.set, nil
}

func (b *builder) build(c config.SensorConfig) (Sensor, error) {
	switch c.Kind {
	case config.KindHumidity, config.KindTemperature:
		climate, err := b.climate(c)
		if err != nil {
			return nil, err
		}
		if c.Kind == config.KindHumidity {
			return NewHumidity(c.Name, climate), nil
		}
		return NewTemperature(c.Name, climate), nil

	case config.KindMoisture:
		channel, err := c.ADCChannel()
		if err != nil {
			return nil, err
		}
		adc, err := b.analog()
		if err != nil {
			return nil, err
		}
		return NewMoisture(c.Name, adc, channel, c.Dry, c.Wet), nil

	case config.KindNDVI:
		nir, red, err := c.NDVIChannels()
		if err != nil {
			return nil, err
		}
		adc, err := b.analog()
		if err != nil {
			return nil, err
		}
		return NewNDVI(c.Name, adc, nir, red), nil

	case config.KindLightLevel:
		addr, err := c.I2CAddress()
		if err != nil {
			return nil, err
		}
		dev, err := b.hw.OpenI2C(addr)
		if err != nil {
			return nil, err
		}
		return NewLightLevel(c.Name, dev), nil

	default:
		return nil, fmt.Errorf("%w: unknown kind %q", config.ErrInvalid, c.Kind)
	}
}

func (b *builder) climate(c config.SensorConfig) (*Climate, error) {
	pin, err := b.pins.Pin(c.Address)
	if err != nil {
		return nil, err
	}
	if climate, ok := b.climates[pin.Number]; ok {
		if b.models[pin.Number] != c.Model {
			return nil, fmt.Errorf("%w: %s already has a %s device, not %s",
				config.ErrInvalid, pin.Name, b.models[pin.Number], c.Model)
		}
		return climate, nil
	}

	dev, err := b.hw.OpenDHT(c.Model, pin)
	if err != nil {
		return nil, err
	}
	climate := NewClimate(c.Model, dev)
	b.climates[pin.Number] = climate
	b.models[pin.Number] = c.Model
	b.set.closers = append(b.set.closers, climate)
	return climate, nil
}

func (b *builder) analog() (ADC, error) {
	if b.adc != nil {
		return b.adc, nil
	}
	conn, err := b.hw.OpenSPI()
	if err != nil {
		return nil, err
	}
	b.adc = NewMCP3008(conn)
	return b.adc, nil
}
