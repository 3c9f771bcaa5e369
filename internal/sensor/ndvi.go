package sensor

import (
	"context"
	"errors"
)

// NDVI computes the normalised difference vegetation index from a
// near-infrared and a red photodiode on two ADC channels.
type NDVI struct {
	name string
	adc  ADC
	nir  int
	red  int
}

// NewNDVI creates an NDVI sensor
func NewNDVI(name string, adc ADC, nirChannel, redChannel int) *NDVI {
	return &NDVI{name: name, adc: adc, nir: nirChannel, red: redChannel}
}

func (n *NDVI) Name() string { return n.name }

// Read returns (nir - red) / (nir + red), in -1..1
func (n *NDVI) Read(ctx context.Context) (float64, error) {
	nir, err := n.adc.ReadChannel(ctx, n.nir)
	if err != nil {
		return 0, ioError(n.name, err)
	}
	red, err := n.adc.ReadChannel(ctx, n.red)
	if err != nil {
		return 0, ioError(n.name, err)
	}
	if nir+red == 0 {
		return 0, ioError(n.name, errors.New("no light on either photodiode"))
	}
	return float64(nir-red) / float64(nir+red), nil
}
