// Package bus implements the address decoder sitting between the CPU and
// its memory regions.
//
// Today there is exactly one region, DRAM, mapped starting at
// dram.Base. Any address at or above dram.Base is forwarded to DRAM;
// anything below it fails with ErrUnmapped. A future region (MMIO, ROM)
// would be added here as another range check, not by changing the CPU.
package bus

import (
	"github.com/pkg/errors"

	"github.com/rv64emu/rv64emu/pkg/dram"
)

// ErrUnmapped indicates an access below the lowest mapped region.
var ErrUnmapped = errors.New("bus: address is not mapped to any region")

// Bus decodes addresses and forwards accesses to the owning region.
type Bus struct {
	DRAM *dram.DRAM
}

// New constructs a Bus whose sole region is a DRAM loaded from image.
func New(image []byte) (*Bus, error) {
	d, err := dram.New(image)
	if err != nil {
		return nil, errors.Wrap(err, "bus: constructing dram")
	}
	return &Bus{DRAM: d}, nil
}

// Load forwards a width-bit load to the region owning addr.
func (b *Bus) Load(addr, width uint64) (uint64, error) {
	if addr >= dram.Base {
		v, err := b.DRAM.Load(addr, width)
		return v, errors.Wrap(err, "bus: dram load")
	}
	return 0, errors.Wrapf(ErrUnmapped, "bus: addr=0x%x", addr)
}

// Store forwards a width-bit store to the region owning addr.
func (b *Bus) Store(addr, width, value uint64) error {
	if addr >= dram.Base {
		return errors.Wrap(b.DRAM.Store(addr, width, value), "bus: dram store")
	}
	return errors.Wrapf(ErrUnmapped, "bus: addr=0x%x", addr)
}
