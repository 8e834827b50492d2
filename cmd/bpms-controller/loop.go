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
	"sync"
	"time"

	"github.com/heliosracing/bpms-controller/afe"
	"github.com/heliosracing/bpms-controller/bms"
	"github.com/heliosracing/bpms-controller/clock"
	"github.com/heliosracing/bpms-controller/config"
	"github.com/heliosracing/bpms-controller/telem"
	"github.com/heliosracing/bpms-controller/therm"
)

// monitor is the slice of the LTC6804 driver the control loop uses.
// Tests substitute a scripted fake.
type monitor interface {
	ReadCellVoltages() ([afe.CellsPerChain]uint16, error)
	ReadAuxCounts(n int) ([]uint16, error)
	WriteDischargeMask(mask uint8) error
}

// pageLink is one transmission path for assembled telemetry pages.
type pageLink interface {
	SendPages(*telem.Registry) error
}

// Snapshot is the state of the most recent control cycle, published
// over D-Bus as JSON.
type Snapshot struct {
	UptimeMillis  int64                     `json:"uptimeMillis"`
	Cycles        uint64                    `json:"cycles"`
	LowerAverages [bms.CellsPerGroup]uint16 `json:"lowerAverages"`
	UpperAverages [bms.CellsPerGroup]uint16 `json:"upperAverages"`
	LowerMask     uint8                     `json:"lowerMask"`
	UpperMask     uint8                     `json:"upperMask"`
	Temperatures  []float64                 `json:"temperatures"`
	Balancing     bool                      `json:"balancing"`
}

type controller struct {
	pack      *bms.Pack
	registry  *telem.Registry
	assembler *telem.Assembler
	chains    [bms.GroupCount]monitor
	converter *therm.Converter
	counter   *clock.Counter
	links     []pageLink
	battery   config.Battery
	auxTotal  int

	readingsPath string

	// Loop goroutine only.
	lastRaw [bms.GroupCount][bms.CellsPerGroup]uint16
	haveRaw [bms.GroupCount]bool
	temps   []float64

	mu        sync.Mutex
	balancing bool
	snap      Snapshot
}

func newController(pack *bms.Pack, registry *telem.Registry, chains [bms.GroupCount]monitor,
	converter *therm.Converter, counter *clock.Counter, battery config.Battery, auxTotal int) *controller {
	return &controller{
		pack:      pack,
		registry:  registry,
		assembler: telem.NewAssembler(registry),
		chains:    chains,
		converter: converter,
		counter:   counter,
		battery:   battery,
		auxTotal:  auxTotal,
		temps:     make([]float64, auxTotal),
		balancing: battery.BalancingEnabled,
	}
}

func (c *controller) addLink(l pageLink) {
	c.links = append(c.links, l)
}

func (c *controller) SetBalancing(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.balancing != enabled {
		log.Infof("Balancing enabled: %v", enabled)
	}
	c.balancing = enabled
}

// EnableBalancing handles the enable-balancing bus command.
func (c *controller) EnableBalancing() {
	c.SetBalancing(true)
}

func (c *controller) IsBalancing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balancing
}

func (c *controller) DischargeMasks() (uint8, uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.LowerMask, c.snap.UpperMask
}

func (c *controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// run drives the control loop until the process exits.
func (c *controller) run() error {
	if c.readingsPath != "" {
		if err := keepLastLines(c.readingsPath, maxReadingLines); err != nil {
			return err
		}
	}
	lastTrim := time.Now()

	ticker := time.NewTicker(c.battery.CycleInterval)
	defer ticker.Stop()
	for range ticker.C {
		if c.readingsPath != "" && time.Since(lastTrim) > 24*time.Hour {
			if err := keepLastLines(c.readingsPath, maxReadingLines); err != nil {
				log.Errorf("Trimming readings log: %v", err)
			}
			lastTrim = time.Now()
		}
		c.runCycle()
	}
	return nil
}

// runCycle performs one pass of the protection sequence: sample, filter,
// decide, actuate, then report. Decisions always come from the averages
// updated at the top of the same cycle.
func (c *controller) runCycle() {
	c.sampleVoltages()

	lower := c.pack.EncodeMask(bms.Lower, c.pack.Decisions(bms.Lower, c.battery.BalanceThreshold))
	upper := c.pack.EncodeMask(bms.Upper, c.pack.Decisions(bms.Upper, c.battery.BalanceThreshold))
	if !c.IsBalancing() {
		lower, upper = 0, 0
	}

	c.writeMasks(lower, upper)
	c.sampleTemperatures()
	c.assemblePages(lower, upper)

	for _, link := range c.links {
		if err := link.SendPages(c.registry); err != nil {
			log.Errorf("Sending pages: %v", err)
		}
	}

	log.Debugf("Cycle masks: lower 0x%02X, upper 0x%02X", lower, upper)
	if c.readingsPath != "" {
		if err := c.appendReading(lower, upper); err != nil {
			log.Errorf("Recording readings: %v", err)
		}
	}

	c.publishSnapshot(lower, upper)
}

// sampleVoltages reads each chain and feeds the moving averages. A
// failed read repeats the group's previous raw sample so the filter
// keeps its cadence instead of stalling.
func (c *controller) sampleVoltages() {
	for _, g := range bms.Groups() {
		raw, err := c.chains[g].ReadCellVoltages()
		if err != nil {
			log.Errorf("Reading %s group voltages: %v", g, err)
			if !c.haveRaw[g] {
				continue
			}
			raw = c.lastRaw[g]
		}
		c.lastRaw[g] = raw
		c.haveRaw[g] = true
		c.pack.Observe(g, raw)
	}
}

// writeMasks sends the discharge masks to the monitor chains. With
// mirror-lower-mask set the second chain receives the Lower group's
// mask again, matching the legacy controller.
func (c *controller) writeMasks(lower, upper uint8) {
	second := upper
	if c.battery.MirrorLowerMask {
		second = lower
	}
	if err := c.chains[bms.Lower].WriteDischargeMask(lower); err != nil {
		log.Errorf("Writing %s group discharge mask: %v", bms.Lower, err)
	}
	if err := c.chains[bms.Upper].WriteDischargeMask(second); err != nil {
		log.Errorf("Writing %s group discharge mask: %v", bms.Upper, err)
	}
}

// sampleTemperatures reads the thermistor channels, split evenly across
// the chains, Lower chain first. Channels that fail to read keep their
// previous value.
func (c *controller) sampleTemperatures() {
	if c.auxTotal == 0 {
		return
	}
	half := (c.auxTotal + 1) / 2
	base := 0
	for _, g := range bms.Groups() {
		n := half
		if g == bms.Upper {
			n = c.auxTotal - half
		}
		if n == 0 {
			continue
		}
		counts, err := c.chains[g].ReadAuxCounts(n)
		if err != nil {
			log.Errorf("Reading %s group thermistors: %v", g, err)
			base += n
			continue
		}
		for i, count := range counts {
			temp, err := c.converter.CountsToCelsius(count)
			if err != nil {
				log.Debugf("Thermistor %d: %v", base+i, err)
				continue
			}
			c.temps[base+i] = temp
		}
		base += n
	}
}

func (c *controller) assemblePages(lower, upper uint8) {
	avgs := make([]uint16, 0, bms.GroupCount*bms.CellsPerGroup)
	for _, g := range bms.Groups() {
		a := c.pack.Averages(g)
		avgs = append(avgs, a[:]...)
	}
	if err := c.assembler.PackVoltages(avgs); err != nil {
		log.Errorf("Assembling voltage page: %v", err)
	}
	if err := c.assembler.PackTemperatures(c.temps); err != nil {
		log.Errorf("Assembling temperature page: %v", err)
	}
	c.assembler.PackCurrentAndBalance(bms.Combined(lower, upper))
}

func (c *controller) publishSnapshot(lower, upper uint8) {
	snap := Snapshot{
		UptimeMillis:  c.counter.Millis(),
		LowerAverages: c.pack.Averages(bms.Lower),
		UpperAverages: c.pack.Averages(bms.Upper),
		LowerMask:     lower,
		UpperMask:     upper,
		Temperatures:  append([]float64(nil), c.temps...),
	}
	c.mu.Lock()
	snap.Cycles = c.snap.Cycles + 1
	snap.Balancing = c.balancing
	c.snap = snap
	c.mu.Unlock()
}
