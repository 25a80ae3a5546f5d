// Package crc computes the CRC-32C (Castagnoli) checksum GVRS uses to
// validate checksummed records. This is a new ambient-stack component,
// not adopted from the teacher (the retrieved pack has no crc package of
// its own) — a thin wrapper over stdlib hash/crc32, since CRC-32C needs
// nothing beyond its standard table and update function.
package crc

import "hash/crc32"

var table = crc32.MakeTable(crc32.Castagnoli)

// Incremental accumulates a CRC-32C over successive chunks, mirroring the
// way a record's body is appended to before the trailing checksum field is
// known.
type Incremental struct {
	crc uint32
}

// NewIncremental returns a fresh incremental CRC-32C accumulator.
func NewIncremental() *Incremental {
	return &Incremental{}
}

// Write feeds bytes into the running checksum. It never returns an error.
func (i *Incremental) Write(p []byte) (int, error) {
	i.crc = crc32.Update(i.crc, table, p)
	return len(p), nil
}

// Sum32 returns the checksum accumulated so far.
func (i *Incremental) Sum32() uint32 {
	return i.crc
}

// Reset clears the accumulator back to its initial state.
func (i *Incremental) Reset() {
	i.crc = 0
}
