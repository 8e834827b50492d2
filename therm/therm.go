// Package therm converts monitor GPIO ADC counts from the pack
// thermistors into Celsius temperatures.
package therm

import (
	"fmt"
	"math"

	"github.com/heliosracing/bpms-controller/config"
)

const kelvinOffset = 273.15

// Converter applies the simplified Steinhart and Hart equation for the
// configured voltage divider. Each thermistor sits on the low side of
// its divider, so counts fall as the cell warms.
type Converter struct {
	c config.Thermistor
}

func NewConverter(c config.Thermistor) *Converter {
	return &Converter{c: c}
}

// CountsToCelsius converts one ADC reading. Counts at or beyond the
// divider rails mean a shorted or open channel and return an error.
func (tc *Converter) CountsToCelsius(counts uint16) (float64, error) {
	volts := float64(counts) / tc.c.CountsPerVolt
	if volts <= 0 || volts >= tc.c.SupplyVolts {
		return 0, fmt.Errorf("reading of %d counts is outside the divider range", counts)
	}
	resistance := tc.c.SeriesOhms * volts / (tc.c.SupplyVolts - volts)

	invT := 1/(tc.c.NominalTempC+kelvinOffset) + math.Log(resistance/tc.c.NominalOhms)/tc.c.BCoefficient
	return 1/invT - kelvinOffset, nil
}
