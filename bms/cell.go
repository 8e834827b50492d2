package bms

import "fmt"

const (
	// CellsPerGroup is fixed by the monitor hardware, one discharge bit
	// per cell.
	CellsPerGroup = 4
	GroupCount    = 2
)

// Group identifies one of the two independently balanced cell partitions.
type Group int

const (
	Lower Group = iota
	Upper
)

func (g Group) String() string {
	switch g {
	case Lower:
		return "lower"
	case Upper:
		return "upper"
	}
	return fmt.Sprintf("group(%d)", int(g))
}

// Groups lists the groups in actuation order, Lower first.
func Groups() [GroupCount]Group {
	return [GroupCount]Group{Lower, Upper}
}

// Cell holds the measurement state for one physical cell.
//
// The protection flags exist for the telemetry layout only. Nothing in
// the balancing path writes them.
type Cell struct {
	Raw     uint16 // latest instantaneous reading, 100 uV counts
	Average uint16 // truncated mean of the sample history
	BitPos  uint8  // bit within the group discharge mask

	OverVolt  bool
	UnderVolt bool
	OverTemp  bool

	history []uint16
}

// Pack is the registry of monitored cells, two groups of four. It is
// built once at startup and owned by the control loop.
type Pack struct {
	depth int
	cells [GroupCount][CellsPerGroup]Cell
}

// NewPack makes a pack whose cells each keep a history of depth raw
// samples.
func NewPack(depth int) (*Pack, error) {
	if depth < 1 {
		return nil, fmt.Errorf("sample depth must be at least 1, got %d", depth)
	}
	p := &Pack{depth: depth}
	for g := range p.cells {
		for i := range p.cells[g] {
			p.cells[g][i].BitPos = uint8(i)
			p.cells[g][i].history = make([]uint16, depth)
		}
	}
	return p, nil
}

func (p *Pack) Depth() int {
	return p.depth
}

// Cell returns the cell at index i of group g. The pointer stays valid
// for the life of the pack.
func (p *Pack) Cell(g Group, i int) *Cell {
	return &p.cells[g][i]
}

// Averages returns the current averaged voltages of group g.
func (p *Pack) Averages(g Group) [CellsPerGroup]uint16 {
	var avgs [CellsPerGroup]uint16
	for i := range p.cells[g] {
		avgs[i] = p.cells[g][i].Average
	}
	return avgs
}
