package sensor

import "io"

// DHTDevice is a DHT11/DHT22 humidity and temperature sensor
type DHTDevice interface {
	// Read performs a single reading from the sensor
	// Returns temperature (°C), humidity (%), and any error
	Read() (temperature float64, humidity float64, err error)

	// Close cleans up GPIO resources
	Close() error
}

// Transceiver is a half-duplex bus connection. periph.io spi.Conn and
// i2c.Dev both satisfy it.
type Transceiver interface {
	Tx(w, r []byte) error
}

// Hardware opens the devices sensors are attached to
type Hardware interface {
	io.Closer

	// OpenDHT opens a DHT device of the given model on a GPIO pin
	OpenDHT(model string, pin Pin) (DHTDevice, error)

	// OpenSPI connects to the SPI port the ADC is wired to
	OpenSPI() (Transceiver, error)

	// OpenI2C returns a device handle at addr on the I2C bus
	OpenI2C(addr uint16) (Transceiver, error)
}
