package bms

// Reference returns the index of group g's reference cell, the one with
// the lowest average voltage. On ties the higher index wins.
func (p *Pack) Reference(g Group) int {
	ref := 0
	for i := range p.cells[g] {
		if p.cells[g][i].Average <= p.cells[g][ref].Average {
			ref = i
		}
	}
	return ref
}

// Decide reports whether the cell at index i of group g should discharge,
// true when its average sits more than threshold counts above the cell at
// index ref. There is no hysteresis, so a cell hovering near the
// threshold can toggle between cycles. The reference always decides false
// against itself.
func (p *Pack) Decide(g Group, i, ref int, threshold uint16) bool {
	// ref holds the group minimum, so the subtraction cannot wrap.
	return p.cells[g][i].Average-p.cells[g][ref].Average > threshold
}

// Decisions evaluates Decide for every cell of group g against the
// group's reference.
func (p *Pack) Decisions(g Group, threshold uint16) [CellsPerGroup]bool {
	ref := p.Reference(g)
	var out [CellsPerGroup]bool
	for i := range out {
		out[i] = p.Decide(g, i, ref, threshold)
	}
	return out
}
