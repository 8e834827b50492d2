package config

import "fmt"

const (
	HardwareKey   = "hardware"
	ThermistorKey = "thermistor"
)

// Hardware describes the measurement hardware behind the bpms-io gateway.
type Hardware struct {
	// SPIPort is the periph.io SPI port name. Empty selects the first
	// available port.
	SPIPort string `mapstructure:"spi-port"`

	// ChipSelects names the GPIO pins driving the chip-select line of each
	// monitor chain, Lower group first.
	ChipSelects []string `mapstructure:"chip-selects"`

	// ADCChannels is the number of thermistor channels read each cycle,
	// split evenly across the chains.
	ADCChannels int `mapstructure:"adc-channels"`

	// EEPROM is whether the interface board carries the pack identity
	// EEPROM.
	EEPROM bool `mapstructure:"eeprom"`
}

func DefaultHardware() Hardware {
	return Hardware{
		SPIPort:     "",
		ChipSelects: []string{"GPIO8", "GPIO7"},
		ADCChannels: 8,
		EEPROM:      true,
	}
}

func (h Hardware) Validate() error {
	if len(h.ChipSelects) != 2 {
		return fmt.Errorf("hardware.chip-selects needs exactly 2 pins, got %d", len(h.ChipSelects))
	}
	if h.ADCChannels < 0 || h.ADCChannels > 24 {
		return fmt.Errorf("hardware.adc-channels must be between 0 and 24, got %d", h.ADCChannels)
	}
	return nil
}

// Thermistor holds the voltage divider and Steinhart-Hart constants used to
// convert GPIO ADC counts to temperatures.
type Thermistor struct {
	SeriesOhms    float64 `mapstructure:"series-ohms"`
	NominalOhms   float64 `mapstructure:"nominal-ohms"`
	BCoefficient  float64 `mapstructure:"b-coefficient"`
	NominalTempC  float64 `mapstructure:"nominal-temp-c"`
	SupplyVolts   float64 `mapstructure:"supply-volts"`
	CountsPerVolt float64 `mapstructure:"counts-per-volt"`
}

func DefaultThermistor() Thermistor {
	return Thermistor{
		SeriesOhms:    10000,
		NominalOhms:   10000,
		BCoefficient:  3950,
		NominalTempC:  25,
		SupplyVolts:   3.0,
		CountsPerVolt: 10000, // LTC6804 GPIO ADC, 100 uV per count
	}
}

func (t Thermistor) Validate() error {
	if t.SeriesOhms <= 0 || t.NominalOhms <= 0 || t.BCoefficient <= 0 ||
		t.SupplyVolts <= 0 || t.CountsPerVolt <= 0 {
		return fmt.Errorf("thermistor constants must all be greater than 0")
	}
	return nil
}
