/*
bpms-io - hardware gateway for the battery protection and monitoring system
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
	"fmt"
	"time"

	arg "github.com/alexflint/go-arg"
	"github.com/heliosracing/bpms-controller/config"
	"github.com/heliosracing/bpms-controller/logging"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// The LTC6804 isoSPI interface tops out well above this; 1 MHz leaves
// margin on the long pack harness.
const spiFrequency = physic.MegaHertz

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
	hardware := config.DefaultHardware()
	if err := conf.Unmarshal(config.HardwareKey, &hardware); err != nil {
		return err
	}
	if err := hardware.Validate(); err != nil {
		return err
	}

	log.Debug("Initializing host")
	if _, err := host.Init(); err != nil {
		return err
	}

	port, err := spireg.Open(hardware.SPIPort)
	if err != nil {
		return err
	}
	conn, err := port.Connect(spiFrequency, spi.Mode3, 8)
	if err != nil {
		return err
	}
	log.Infof("SPI port open: %s", conn)

	chipSelects := make([]gpio.PinIO, 0, len(hardware.ChipSelects))
	for _, name := range hardware.ChipSelects {
		pin := gpioreg.ByName(name)
		if pin == nil {
			return fmt.Errorf("GPIO pin %s not found", name)
		}
		// Monitors idle deselected.
		if err := pin.Out(gpio.High); err != nil {
			return err
		}
		chipSelects = append(chipSelects, pin)
	}

	bus, err := i2creg.Open("")
	if err != nil {
		return err
	}

	log.Info("Starting gateway service")
	if err := startService(newService(conn, chipSelects, bus)); err != nil {
		return err
	}

	for {
		time.Sleep(time.Second) // Sleep to prevent spinning
	}
}
