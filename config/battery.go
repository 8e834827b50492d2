package config

import (
	"fmt"
	"time"
)

const BatteryKey = "battery"

// Battery configures the filtering and balancing behaviour of the
// controller.
type Battery struct {
	// SampleDepth is the moving-average window, in samples. The average
	// reads low until this many samples have been taken after startup.
	SampleDepth int `mapstructure:"sample-depth"`

	// BalanceThreshold is how far above the group's reference cell an
	// average must sit before the cell is discharged, in 100 uV counts.
	BalanceThreshold uint16 `mapstructure:"balance-threshold"`

	// CycleInterval is the delay between control cycles.
	CycleInterval time.Duration `mapstructure:"cycle-interval"`

	// MirrorLowerMask reproduces the legacy controller behaviour of
	// writing the Lower group's discharge mask under both chip selects,
	// leaving the Upper group's own mask untransmitted. Set false to send
	// each group its own mask.
	MirrorLowerMask bool `mapstructure:"mirror-lower-mask"`

	// BalancingEnabled starts the controller with balancing active. It can
	// be changed at runtime over D-Bus or by the enable-balancing bus
	// command.
	BalancingEnabled bool `mapstructure:"balancing-enabled"`
}

func DefaultBattery() Battery {
	return Battery{
		SampleDepth:      10,
		BalanceThreshold: 150, // 15.0 mV, about 1% of the usable cell range
		CycleInterval:    200 * time.Millisecond,
		MirrorLowerMask:  true,
		BalancingEnabled: true,
	}
}

func (b Battery) Validate() error {
	if b.SampleDepth < 1 {
		return fmt.Errorf("battery.sample-depth must be at least 1, got %d", b.SampleDepth)
	}
	if b.BalanceThreshold == 0 {
		return fmt.Errorf("battery.balance-threshold must be greater than 0")
	}
	if b.CycleInterval < 10*time.Millisecond {
		return fmt.Errorf("battery.cycle-interval %s is too short", b.CycleInterval)
	}
	return nil
}
