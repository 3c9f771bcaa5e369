package sensor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/afroash/greenhouse-collector/internal/config"
)

// boardPinCount is the number of BCM GPIO lines on the 40-pin header
const boardPinCount = 26

// Pin identifies a GPIO line
type Pin struct {
	// Name is the host GPIO name, e.g. "GPIO4"
	Name string
	// Number is the BCM line number
	Number int
}

// PinProvider resolves configured pin names to GPIO lines
type PinProvider interface {
	Pin(name string) (Pin, error)
}

// BoardPins enumerates the header pins D0..D25 of a Raspberry Pi.
// Resolving a pin does not touch the hardware.
type BoardPins struct {
	pins []Pin
}

// NewBoardPins returns the pin list of a 40-pin Raspberry Pi header
func NewBoardPins() *BoardPins {
	pins := make([]Pin, boardPinCount)
	for i := range pins {
		pins[i] = Pin{Name: fmt.Sprintf("GPIO%d", i), Number: i}
	}
	return &BoardPins{pins: pins}
}

// Pin accepts "D4", "GPIO4" or "4"
func (b *BoardPins) Pin(name string) (Pin, error) {
	s := strings.ToUpper(strings.TrimSpace(name))
	switch {
	case strings.HasPrefix(s, "GPIO"):
		s = strings.TrimPrefix(s, "GPIO")
	case strings.HasPrefix(s, "D"):
		s = strings.TrimPrefix(s, "D")
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n >= len(b.pins) {
		return Pin{}, fmt.Errorf("%w: unknown pin %q", config.ErrInvalid, name)
	}
	return b.pins[n], nil
}
