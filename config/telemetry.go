package config

import "fmt"

const TelemetryKey = "telemetry"

// Telemetry selects the links the controller publishes pages on.
type Telemetry struct {
	CANEnabled   bool   `mapstructure:"can-enabled"`
	CANInterface string `mapstructure:"can-interface"`
	RadioEnabled bool   `mapstructure:"radio-enabled"`
	RadioDevice  string `mapstructure:"radio-device"`
	RadioBaud    int    `mapstructure:"radio-baud"`
}

func DefaultTelemetry() Telemetry {
	return Telemetry{
		CANEnabled:   true,
		CANInterface: "can0",
		RadioEnabled: false,
		RadioDevice:  "/dev/serial0",
		RadioBaud:    9600,
	}
}

func (t Telemetry) Validate() error {
	if t.CANEnabled && t.CANInterface == "" {
		return fmt.Errorf("telemetry.can-interface must be set when CAN is enabled")
	}
	if t.RadioEnabled {
		if t.RadioDevice == "" {
			return fmt.Errorf("telemetry.radio-device must be set when the radio is enabled")
		}
		if t.RadioBaud <= 0 {
			return fmt.Errorf("telemetry.radio-baud must be greater than 0, got %d", t.RadioBaud)
		}
	}
	return nil
}
