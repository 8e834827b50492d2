// Package afe drives the LTC6804 cell monitor chains through the
// bpms-io gateway.
package afe

// Polynomial x^15 + x^14 + x^10 + x^8 + x^7 + x^4 + x^3 + 1 with the
// x^15 term dropped.
const pec15Poly = 0x4599

var pec15Table = makePEC15Table()

func makePEC15Table() [256]uint16 {
	var table [256]uint16
	for i := range table {
		remainder := uint16(i) << 7
		for bit := 0; bit < 8; bit++ {
			if remainder&0x4000 != 0 {
				remainder = (remainder << 1) ^ pec15Poly
			} else {
				remainder <<= 1
			}
		}
		table[i] = remainder
	}
	return table
}

// PEC15 computes the 15 bit packet error code the monitor expects after
// every command and register group, returned shifted left one bit as it
// appears on the wire.
func PEC15(data []byte) uint16 {
	remainder := uint16(16) // seed
	for _, b := range data {
		addr := ((remainder >> 7) ^ uint16(b)) & 0xFF
		remainder = (remainder << 8) ^ pec15Table[addr]
	}
	return remainder << 1
}

// appendPEC appends the big endian PEC of data to data.
func appendPEC(data []byte) []byte {
	pec := PEC15(data)
	return append(data, byte(pec>>8), byte(pec))
}
