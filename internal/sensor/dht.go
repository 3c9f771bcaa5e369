package sensor

import (
	"fmt"
	"math"

	godht "github.com/MichaelS11/go-dht"
	afdht "github.com/afroash/dht"

	"github.com/afroash/greenhouse-collector/internal/config"
)

// dhtMaxRetries is how often a checksum or timing failure is retried
// before a read is reported as failed
const dhtMaxRetries = 3

// dhtLimits are the relaxed sanity bounds for a model's readings
type dhtLimits struct {
	minTemp, maxTemp         float64
	minHumidity, maxHumidity float64
}

var limitsByModel = map[string]dhtLimits{
	config.ModelDHT11: {minTemp: -20, maxTemp: 60, minHumidity: 0, maxHumidity: 100},
	config.ModelDHT22: {minTemp: -40, maxTemp: 80, minHumidity: 0, maxHumidity: 100},
}

// DHT11Reader implements DHTDevice for DHT11 hardware
type DHT11Reader struct {
	pin        int
	maxRetries int
	sensor     *afdht.Sensor
}

// NewDHT11Reader creates a new DHT11 sensor reader
func NewDHT11Reader(pin int) (*DHT11Reader, error) {
	s, err := afdht.NewDHT11(pin)
	if err != nil {
		return nil, fmt.Errorf("open DHT11 on GPIO%d: %w", pin, err)
	}
	return &DHT11Reader{
		pin:        pin,
		maxRetries: dhtMaxRetries,
		sensor:     s,
	}, nil
}

// Read performs a reading from the DHT11 sensor with retry logic
func (d *DHT11Reader) Read() (float64, float64, error) {
	reading, err := d.sensor.ReadRetry(d.maxRetries)
	if err != nil {
		return 0, 0, fmt.Errorf("DHT11 on GPIO%d failed after %d retries: %w", d.pin, d.maxRetries, err)
	}
	return reading.Temperature, reading.Humidity, nil
}

// Close cleans up GPIO resources
func (d *DHT11Reader) Close() error {
	return d.sensor.Close()
}

// DHT22Reader implements DHTDevice for DHT22/AM2302 hardware
type DHT22Reader struct {
	pin        string
	maxRetries int
	dev        *godht.DHT
}

// NewDHT22Reader creates a new DHT22 reader on the named GPIO line.
// The host must have been initialised.
func NewDHT22Reader(pin string) (*DHT22Reader, error) {
	dev, err := godht.NewDHT(pin, godht.Celsius, "dht22")
	if err != nil {
		return nil, fmt.Errorf("open DHT22 on %s: %w", pin, err)
	}
	return &DHT22Reader{
		pin:        pin,
		maxRetries: dhtMaxRetries,
		dev:        dev,
	}, nil
}

// Read performs a reading from the DHT22 sensor with retry logic
func (d *DHT22Reader) Read() (float64, float64, error) {
	humidity, temperature, err := d.dev.ReadRetry(d.maxRetries)
	if err != nil {
		return 0, 0, fmt.Errorf("DHT22 on %s failed after %d retries: %w", d.pin, d.maxRetries, err)
	}
	return temperature, humidity, nil
}

// Close is a no-op; go-dht releases the line after every read
func (d *DHT22Reader) Close() error {
	return nil
}

// validateReading checks if temperature and humidity values are reasonable
func validateReading(model string, temp, humidity float64) error {
	l, ok := limitsByModel[model]
	if !ok {
		return fmt.Errorf("unknown DHT model %q", model)
	}
	if math.IsNaN(temp) || math.IsNaN(humidity) {
		return fmt.Errorf("reading is not a number (temperature %v, humidity %v)", temp, humidity)
	}
	if temp < l.minTemp || temp > l.maxTemp {
		return fmt.Errorf("temperature %.1f°C outside %.0f..%.0f°C", temp, l.minTemp, l.maxTemp)
	}
	if humidity < l.minHumidity || humidity > l.maxHumidity {
		return fmt.Errorf("humidity %.1f%% outside %.0f..%.0f%%", humidity, l.minHumidity, l.maxHumidity)
	}
	return nil
}
