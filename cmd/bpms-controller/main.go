/*
bpms-controller - battery protection and monitoring control loop
Copyright (C) 2026, Helios Racing

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package main

import (
	arg "github.com/alexflint/go-arg"
	"github.com/heliosracing/bpms-controller/afe"
	"github.com/heliosracing/bpms-controller/bms"
	"github.com/heliosracing/bpms-controller/clock"
	"github.com/heliosracing/bpms-controller/config"
	"github.com/heliosracing/bpms-controller/hwid"
	"github.com/heliosracing/bpms-controller/logging"
	"github.com/heliosracing/bpms-controller/telem"
	"github.com/heliosracing/bpms-controller/therm"
	"github.com/heliosracing/bpms-controller/transport"
)

var (
	version = "<not set>"
	log     = logging.NewLogger("info")
)

type Args struct {
	ConfigDir string `arg:"-c,--config" help:"configuration folder"`
	logging.LogArgs
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	args := Args{
		ConfigDir: config.DefaultConfigDir,
	}
	arg.MustParse(&args)
	return args
}

func main() {
	if err := runMain(); err != nil {
		log.Fatal(err)
	}
}

func runMain() error {
	args := procArgs()
	logging.SetLogLevel(log, args.LogLevel)

	log.Infof("Running version: %s", version)

	conf, err := config.New(args.ConfigDir)
	if err != nil {
		return err
	}
	battery := config.DefaultBattery()
	if err := conf.Unmarshal(config.BatteryKey, &battery); err != nil {
		return err
	}
	if err := battery.Validate(); err != nil {
		return err
	}
	hardware := config.DefaultHardware()
	if err := conf.Unmarshal(config.HardwareKey, &hardware); err != nil {
		return err
	}
	if err := hardware.Validate(); err != nil {
		return err
	}
	thermistor := config.DefaultThermistor()
	if err := conf.Unmarshal(config.ThermistorKey, &thermistor); err != nil {
		return err
	}
	if err := thermistor.Validate(); err != nil {
		return err
	}
	telemetry := config.DefaultTelemetry()
	if err := conf.Unmarshal(config.TelemetryKey, &telemetry); err != nil {
		return err
	}
	if err := telemetry.Validate(); err != nil {
		return err
	}

	// A pack that can't be identified still needs protecting, so identity
	// trouble is logged rather than fatal.
	if hardware.EEPROM {
		if record, err := hwid.Init(args.ConfigDir); err != nil {
			log.Errorf("Pack identity: %v", err)
		} else {
			log.Infof("Pack identity: %s", record)
		}
	}

	registry, err := telem.NewRegistry()
	if err != nil {
		return err
	}
	pack, err := bms.NewPack(battery.SampleDepth)
	if err != nil {
		return err
	}

	counter := clock.Start()
	defer counter.Stop()

	var chains [bms.GroupCount]monitor
	for i := range chains {
		chains[i] = afe.NewLTC6804(i)
	}

	ctrl := newController(pack, registry, chains, therm.NewConverter(thermistor),
		counter, battery, hardware.ADCChannels)
	ctrl.readingsPath = readingsFile

	if battery.MirrorLowerMask {
		log.Info("Mask actuation: legacy mirroring, Lower mask sent to both chains")
	} else {
		log.Info("Mask actuation: each group gets its own mask")
	}

	if telemetry.CANEnabled {
		link, err := transport.OpenCAN(telemetry.CANInterface, ctrl.EnableBalancing)
		if err != nil {
			return err
		}
		defer link.Close()
		ctrl.addLink(link)
		log.Infof("Publishing pages on %s", telemetry.CANInterface)
	}
	if telemetry.RadioEnabled {
		radio, err := transport.OpenRadio(telemetry.RadioDevice, telemetry.RadioBaud)
		if err != nil {
			return err
		}
		defer radio.Close()
		ctrl.addLink(radio)
		log.Infof("Publishing pages on %s at %d baud", telemetry.RadioDevice, telemetry.RadioBaud)
	}

	if err := startService(ctrl); err != nil {
		return err
	}

	log.Infof("Control loop starting: depth %d, threshold %d, every %s",
		battery.SampleDepth, battery.BalanceThreshold, battery.CycleInterval)
	return ctrl.run()
}
