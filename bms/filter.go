package bms

// Observe records one raw sample for every cell of group g and refreshes
// the moving averages. Call once per group per cycle, before any decision
// logic reads Average.
func (p *Pack) Observe(g Group, raw [CellsPerGroup]uint16) {
	for i := range raw {
		p.cells[g][i].observe(raw[i])
	}
}

// observe evicts the oldest history entry, appends raw and recomputes the
// truncated mean. History slots start at zero, so averages read low until
// depth samples have arrived.
func (c *Cell) observe(raw uint16) {
	c.Raw = raw
	copy(c.history, c.history[1:])
	c.history[len(c.history)-1] = raw

	var sum uint32
	for _, v := range c.history {
		sum += uint32(v)
	}
	c.Average = uint16(sum / uint32(len(c.history)))
}
