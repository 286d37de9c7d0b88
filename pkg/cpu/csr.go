package cpu

// NumCSRs is the number of addressable CSR slots (12-bit address space).
const NumCSRs = 4096

// The following CSR addresses carry special semantics; every other
// address is raw storage.
const (
	medeleg = 0x302 // delegation mask for exceptions (raw)
	mideleg = 0x303 // delegation mask from M to S
	sie     = 0x104 // supervisor interrupt enable, overlay on mie & mideleg
	mie     = 0x304 // machine interrupt enable (raw)
	sip     = 0x144 // supervisor interrupt pending (raw slot in this spec)
	mip     = 0x344 // machine interrupt pending (raw)
	cycle   = 0xC00 // retired-instruction counter
	rdtime  = 0xC01 // seconds elapsed since CPU construction
	instret = 0xC02 // retired-instruction counter
)

// loadCSR implements the "raw-storage unless overlaid" read policy:
// sie is the only address with bit-level mirroring.
func (c *CPU) loadCSR(addr uint64) uint64 {
	switch addr {
	case sie:
		return c.CSRs[mie] & c.CSRs[mideleg]
	default:
		return c.CSRs[addr]
	}
}

// storeCSR implements the matching write policy: writing sie updates
// only the bits of mie selected by mideleg, leaving the rest of mie
// untouched.
func (c *CPU) storeCSR(addr, value uint64) {
	switch addr {
	case sie:
		c.CSRs[mie] = (c.CSRs[mie] &^ c.CSRs[mideleg]) | (value & c.CSRs[mideleg])
	default:
		c.CSRs[addr] = value
	}
}
