/*
bpms-schema - inspect and decode the battery pack's telemetry packets
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
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	arg "github.com/alexflint/go-arg"
	"github.com/heliosracing/bpms-controller/logging"
	"github.com/heliosracing/bpms-controller/telem"
	"github.com/heliosracing/bpms-controller/transport"
)

var (
	version = "<not set>"
	log     = logging.NewLogger("info")
)

type Args struct {
	List   bool   `arg:"--list" help:"print the packet schema tables (the default)"`
	ID     string `arg:"--id" help:"show one descriptor, hex (0x...) or decimal identifier"`
	Decode string `arg:"--decode" help:"decode a hex payload"`
	Page   string `arg:"--page" help:"layout for --decode: voltage, temperature or curbal"`
	Frame  bool   `arg:"--frame" help:"treat the payload as a radio frame and unwrap it first"`
	logging.LogArgs
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	args := Args{}
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

	registry, err := telem.NewRegistry()
	if err != nil {
		return err
	}

	switch {
	case args.Decode != "":
		return decode(registry, args)
	case args.ID != "":
		return show(registry, args.ID)
	default:
		list(registry)
		return nil
	}
}

func list(r *telem.Registry) {
	fmt.Println("Bus packets:")
	for _, d := range r.BusPackets() {
		fmt.Printf("  0x%-5X %-30s %d bytes\n", d.ID, d.Name, d.Len)
	}
	fmt.Println("Telemetry packets:")
	for _, d := range r.TelemetryPackets() {
		fmt.Printf("  0x%-5X %-30s %d bytes\n", d.ID, d.Name, d.Len)
	}
	fmt.Println("Command and response packets:")
	for _, d := range r.CommandPackets() {
		fmt.Printf("  0x%-5X %-30s signal only\n", d.ID, d.Name)
	}
}

func show(r *telem.Registry, idStr string) error {
	id64, err := strconv.ParseUint(idStr, 0, 32)
	if err != nil {
		return fmt.Errorf("bad identifier %q: %v", idStr, err)
	}
	id := uint32(id64)
	if d, ok := r.Bus(id); ok {
		fmt.Printf("bus packet %s: id 0x%X, %d bytes\n", d.Name, d.ID, d.Len)
		return nil
	}
	if d, ok := r.Telemetry(id); ok {
		fmt.Printf("telemetry packet %s: id 0x%X, %d bytes\n", d.Name, d.ID, d.Len)
		return nil
	}
	if d, ok := r.Command(id); ok {
		fmt.Printf("command packet %s: id 0x%X, signal only\n", d.Name, d.ID)
		return nil
	}
	return fmt.Errorf("no packet with id 0x%X", id)
}

// pageForID maps a telemetry packet identifier to its page layout name.
func pageForID(id byte) string {
	switch uint32(id) {
	case telem.TELEM_BPS_VOLTAGE:
		return "voltage"
	case telem.TELEM_BPS_TEMPERATURE:
		return "temperature"
	case telem.TELEM_BPS_CUR_BAL_STAT:
		return "curbal"
	}
	return ""
}

func decode(r *telem.Registry, args Args) error {
	cleaned := strings.NewReplacer(" ", "", ":", "", ",", "").Replace(args.Decode)
	payload, err := hex.DecodeString(cleaned)
	if err != nil {
		return fmt.Errorf("bad hex payload: %v", err)
	}

	page := args.Page
	if args.Frame {
		id, inner, err := transport.DecodeFrame(payload)
		if err != nil {
			return err
		}
		payload = inner
		if page == "" {
			page = pageForID(id)
			if page == "" {
				return fmt.Errorf("frame id 0x%X is not a telemetry packet", id)
			}
		}
		fmt.Printf("frame id 0x%02X, %d byte payload\n", id, len(payload))
	}

	switch page {
	case "voltage":
		entries, err := telem.DecodeVoltagePage(payload)
		if err != nil {
			return err
		}
		for i, counts := range entries {
			fmt.Printf("cell %2d: %5d counts  %.4f V\n", i, counts, float64(counts)/10000)
		}
	case "temperature":
		temps, err := telem.DecodeTemperaturePage(payload)
		if err != nil {
			return err
		}
		for i, t := range temps {
			fmt.Printf("channel %2d: %d C\n", i, t)
		}
	case "curbal":
		current, discharge, err := telem.DecodeCurBalPage(payload)
		if err != nil {
			return err
		}
		combined := uint8(discharge)
		fmt.Printf("current: %d\n", current)
		fmt.Printf("discharge state: 0x%08X (lower mask 0x%X, upper mask 0x%X)\n",
			discharge, combined&0xF, combined>>4)
	case "":
		return errors.New("--page is needed to decode a bare payload")
	default:
		return fmt.Errorf("unknown page %q, want voltage, temperature or curbal", page)
	}
	return nil
}
