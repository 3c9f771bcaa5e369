package sensor

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/afroash/greenhouse-collector/internal/config"
)

// mcp3008ClockSpeed stays within the converter's limit at 3.3V
const mcp3008ClockSpeed = 1 * physic.MegaHertz

// Host opens devices on the local board through periph.io
type Host struct {
	spiName string
	i2cName string

	mu      sync.Mutex
	spiPort spi.PortCloser
	spiConn spi.Conn
	i2cBus  i2c.BusCloser
}

var _ Hardware = (*Host)(nil)

// NewHost initialises the host drivers. This also registers the GPIO lines
// the DHT drivers resolve by name.
func NewHost(cfg config.HardwareConfig) (*Host, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host drivers: %w", err)
	}
	return &Host{spiName: cfg.SPIPort, i2cName: cfg.I2CBus}, nil
}

// OpenDHT opens a DHT device of the given model on a GPIO pin
func (h *Host) OpenDHT(model string, pin Pin) (DHTDevice, error) {
	switch model {
	case config.ModelDHT11:
		return NewDHT11Reader(pin.Number)
	case config.ModelDHT22:
		return NewDHT22Reader(pin.Name)
	default:
		return nil, fmt.Errorf("%w: unknown DHT model %q", config.ErrInvalid, model)
	}
}

// OpenSPI opens the SPI port once and returns the shared connection
func (h *Host) OpenSPI() (Transceiver, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.spiConn != nil {
		return h.spiConn, nil
	}
	port, err := spireg.Open(h.spiName)
	if err != nil {
		return nil, fmt.Errorf("open spi port %q: %w", h.spiName, err)
	}
	conn, err := port.Connect(mcp3008ClockSpeed, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("connect spi port %q: %w", h.spiName, err)
	}
	h.spiPort, h.spiConn = port, conn
	return conn, nil
}

// OpenI2C opens the I2C bus once and returns a device handle at addr
func (h *Host) OpenI2C(addr uint16) (Transceiver, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.i2cBus == nil {
		bus, err := i2creg.Open(h.i2cName)
		if err != nil {
			return nil, fmt.Errorf("open i2c bus %q: %w", h.i2cName, err)
		}
		h.i2cBus = bus
	}
	return &i2c.Dev{Bus: h.i2cBus, Addr: addr}, nil
}

// Close releases the SPI port and I2C bus
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	if h.spiPort != nil {
		errs = append(errs, h.spiPort.Close())
		h.spiPort, h.spiConn = nil, nil
	}
	if h.i2cBus != nil {
		errs = append(errs, h.i2cBus.Close())
		h.i2cBus = nil
	}
	return errors.Join(errs...)
}
