package bms

// EncodeMask folds group g's discharge decisions into its 4-bit mask, one
// bit per cell at the cell's BitPos.
func (p *Pack) EncodeMask(g Group, decisions [CellsPerGroup]bool) uint8 {
	var mask uint8
	for i, on := range decisions {
		if on {
			mask |= 1 << p.cells[g][i].BitPos
		}
	}
	return mask
}

// Combined packs the two group masks into the discharge state byte sent
// over telemetry, upper group in the high nibble.
func Combined(lower, upper uint8) uint8 {
	return (upper&0xF)<<4 | lower&0xF
}
