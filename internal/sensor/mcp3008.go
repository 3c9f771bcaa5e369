package sensor

import (
	"context"
	"fmt"
	"sync"
)

// ADC reads raw values from analog input channels
type ADC interface {
	ReadChannel(ctx context.Context, channel int) (int, error)
}

// MCP3008 is the 8-channel 10-bit SPI ADC. It is shared by every analog
// sensor, so transfers are serialised.
type MCP3008 struct {
	mu   sync.Mutex
	conn Transceiver
}

// MCP3008MaxValue is the full-scale reading of the 10-bit converter
const MCP3008MaxValue = 1023

// NewMCP3008 wraps an SPI connection (mode 0, 8 bits per word)
func NewMCP3008(conn Transceiver) *MCP3008 {
	return &MCP3008{conn: conn}
}

// ReadChannel performs a single-ended conversion on channel 0..7
func (m *MCP3008) ReadChannel(ctx context.Context, channel int) (int, error) {
	if channel < 0 || channel > 7 {
		return 0, fmt.Errorf("mcp3008: channel %d out of range", channel)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	// start bit, then single-ended flag and channel in the high nibble
	w := []byte{0x01, byte(0x80 | channel<<4), 0x00}
	r := make([]byte, len(w))

	m.mu.Lock()
	err := m.conn.Tx(w, r)
	m.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("mcp3008: spi transfer on channel %d: %w", channel, err)
	}
	return int(r[1]&0x03)<<8 | int(r[2]), nil
}
