// Package dram implements the flat simulated memory backing an RV64I
// emulator.
//
// Memory layout
//
// The DRAM is a contiguous byte buffer of DRAM_SIZE bytes mapped starting
// at physical address DRAM_BASE, matching the base QEMU virt machine uses
// for its RAM region. Byte addr lives at buffer offset addr - DRAM_BASE.
//
// Access widths
//
// Load and Store operate on 8, 16, 32 or 64 bit values, little-endian.
// Load zero-extends into a uint64; callers that need a sign-extended
// value (the RV64I lb/lh/lw family) sign-extend the result themselves.
// Any other width is a programming error and returns ErrInvalidWidth.
package dram

import (
	"github.com/pkg/errors"
)

const (
	// Base is the physical address at which DRAM starts.
	Base = uint64(0x8000_0000)

	// Size is the size of the simulated DRAM in bytes (128 MiB).
	Size = uint64(128 * 1024 * 1024)
)

// The following errors may be returned by Load and Store.
var (
	// ErrInvalidWidth indicates an access width outside {8, 16, 32, 64}.
	ErrInvalidWidth = errors.New("dram: invalid access width")

	// ErrOutOfRange indicates an access outside the mapped DRAM region.
	ErrOutOfRange = errors.New("dram: address out of range")
)

// DRAM is the simulated memory region.
//
// The zero value is not ready for use; construct one with New.
type DRAM struct {
	bytes []byte
}

// New allocates a DRAM region of Size bytes and copies image into the
// low offsets, starting at physical address Base. It returns
// ErrOutOfRange if image does not fit in Size bytes.
func New(image []byte) (*DRAM, error) {
	if uint64(len(image)) > Size {
		return nil, errors.Wrap(ErrOutOfRange, "dram: image larger than DRAM_SIZE")
	}
	d := &DRAM{bytes: make([]byte, Size)}
	copy(d.bytes, image)
	return d, nil
}

// Load reads a width-bit little-endian value at physical address addr
// and zero-extends it to 64 bits.
func (d *DRAM) Load(addr, width uint64) (uint64, error) {
	switch width {
	case 8:
		return d.load8(addr)
	case 16:
		return d.load16(addr)
	case 32:
		return d.load32(addr)
	case 64:
		return d.load64(addr)
	default:
		return 0, errors.Wrapf(ErrInvalidWidth, "dram: width=%d", width)
	}
}

// Store writes the low width bits of value, little-endian, starting at
// physical address addr.
func (d *DRAM) Store(addr, width, value uint64) error {
	switch width {
	case 8:
		return d.store8(addr, value)
	case 16:
		return d.store16(addr, value)
	case 32:
		return d.store32(addr, value)
	case 64:
		return d.store64(addr, value)
	default:
		return errors.Wrapf(ErrInvalidWidth, "dram: width=%d", width)
	}
}

// Bytes returns the raw underlying buffer, for a test harness that wants
// to inspect memory contents directly. The caller must not retain a
// mutable alias across further Store calls if it intends to compare
// snapshots.
func (d *DRAM) Bytes() []byte {
	return d.bytes
}

func (d *DRAM) index(addr, width uint64) (int, error) {
	if addr < Base {
		return 0, errors.Wrapf(ErrOutOfRange, "dram: addr=0x%x below DRAM_BASE", addr)
	}
	off := addr - Base
	if off+width/8 > Size {
		return 0, errors.Wrapf(ErrOutOfRange, "dram: addr=0x%x width=%d beyond DRAM_SIZE", addr, width)
	}
	return int(off), nil
}

func (d *DRAM) load8(addr uint64) (uint64, error) {
	i, err := d.index(addr, 8)
	if err != nil {
		return 0, err
	}
	return uint64(d.bytes[i]), nil
}

func (d *DRAM) load16(addr uint64) (uint64, error) {
	i, err := d.index(addr, 16)
	if err != nil {
		return 0, err
	}
	return uint64(d.bytes[i]) |
		uint64(d.bytes[i+1])<<8, nil
}

func (d *DRAM) load32(addr uint64) (uint64, error) {
	i, err := d.index(addr, 32)
	if err != nil {
		return 0, err
	}
	return uint64(d.bytes[i]) |
		uint64(d.bytes[i+1])<<8 |
		uint64(d.bytes[i+2])<<16 |
		uint64(d.bytes[i+3])<<24, nil
}

func (d *DRAM) load64(addr uint64) (uint64, error) {
	i, err := d.index(addr, 64)
	if err != nil {
		return 0, err
	}
	// Byte shifts are 0/8/16/24/32/40/48/56. An earlier revision of this
	// emulator used 38/46/54 for the top three bytes, which corrupted any
	// 64-bit load whose top three bytes weren't zero; fixed here.
	return uint64(d.bytes[i]) |
		uint64(d.bytes[i+1])<<8 |
		uint64(d.bytes[i+2])<<16 |
		uint64(d.bytes[i+3])<<24 |
		uint64(d.bytes[i+4])<<32 |
		uint64(d.bytes[i+5])<<40 |
		uint64(d.bytes[i+6])<<48 |
		uint64(d.bytes[i+7])<<56, nil
}

func (d *DRAM) store8(addr, value uint64) error {
	i, err := d.index(addr, 8)
	if err != nil {
		return err
	}
	d.bytes[i] = byte(value)
	return nil
}

func (d *DRAM) store16(addr, value uint64) error {
	i, err := d.index(addr, 16)
	if err != nil {
		return err
	}
	d.bytes[i] = byte(value)
	d.bytes[i+1] = byte(value >> 8)
	return nil
}

func (d *DRAM) store32(addr, value uint64) error {
	i, err := d.index(addr, 32)
	if err != nil {
		return err
	}
	d.bytes[i] = byte(value)
	d.bytes[i+1] = byte(value >> 8)
	d.bytes[i+2] = byte(value >> 16)
	d.bytes[i+3] = byte(value >> 24)
	return nil
}

func (d *DRAM) store64(addr, value uint64) error {
	i, err := d.index(addr, 64)
	if err != nil {
		return err
	}
	d.bytes[i] = byte(value)
	d.bytes[i+1] = byte(value >> 8)
	d.bytes[i+2] = byte(value >> 16)
	d.bytes[i+3] = byte(value >> 24)
	d.bytes[i+4] = byte(value >> 32)
	d.bytes[i+5] = byte(value >> 40)
	d.bytes[i+6] = byte(value >> 48)
	d.bytes[i+7] = byte(value >> 56)
	return nil
}
