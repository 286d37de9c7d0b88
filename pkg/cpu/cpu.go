// Package cpu implements the RV64I fetch/decode/execute loop: the
// architectural state (general registers, program counter, CSR file) and
// the interpreter that mutates it one instruction at a time against a
// simulated bus.
//
// This is a user-space, integer-only RV64I core plus the privileged CSR
// read/modify/write instructions and the cycle/time/instret counters.
// Floating point, compressed instructions, multiply/divide, atomics,
// virtual memory, and trap delivery are all out of scope; see the
// package-level spec this emulator was built against for the full list.
package cpu

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rv64emu/rv64emu/pkg/bus"
	"github.com/rv64emu/rv64emu/pkg/dram"
)

// NumRegisters is the number of general-purpose registers.
const NumRegisters = 32

// RegisterABINames are the conventional RISC-V ABI names for x0..x31, in
// order, for use by dump/disassembly front ends.
var RegisterABINames = [NumRegisters]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

// CPU holds the full architectural state for one emulated hart: the
// general register file, program counter, CSR file, and the bus it
// fetches and accesses memory through. It is not safe for concurrent
// use; spec §5 models exactly one mutator.
type CPU struct {
	Regs [NumRegisters]uint64
	PC   uint64
	CSRs [NumCSRs]uint64

	Bus *bus.Bus

	// start anchors the rdtime CSR to wall-clock seconds elapsed.
	start time.Time

	// Log receives one structured event per retired instruction at
	// Debug level. Defaults to an Info-level logger, so Debug events
	// are dropped and tracing is opt-in; raise its level (or swap it out) to capture
	// a trace. Typed as Ext1FieldLogger (not the narrower FieldLogger)
	// because trace() needs IsLevelEnabled to skip building the fields
	// map on the hot path when tracing isn't active.
	Log logrus.Ext1FieldLogger
}

// New constructs a CPU whose DRAM is loaded from image (starting at
// dram.Base) and whose register file and CSR file are zeroed per spec
// §3, except regs[2] which seeds the stack pointer to the top of DRAM.
func New(image []byte) (*CPU, error) {
	b, err := bus.New(image)
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)
	c := &CPU{
		Bus:   b,
		PC:    dram.Base,
		start: time.Now(),
		Log:   log,
	}
	c.Regs[2] = dram.Base + dram.Size
	return c, nil
}

// Run drives the fetch/decode/execute loop to completion: it reads a
// 32-bit instruction word at pc, advances pc by 4, decodes and executes
// it, updates the retire counters, and repeats until a fetch fails, an
// illegal instruction is seen, a load or store faults, or pc becomes
// zero. All of these are clean stops: Run always returns nil once the loop has actually started,
// because the emulator is an observation instrument, not a trap-
// delivering machine (spec §7). Step's error is discarded here by
// design — a caller that wants to distinguish why the loop stopped
// (decode failure, bus fault, or the pc==0 halt sentinel) should drive
// Step directly and errors.As the *DecodeError it returns.
func (c *CPU) Run() error {
	for {
		cont, _ := c.Step()
		if !cont {
			return nil
		}
	}
}

// Peek returns the instruction word at pc without retiring it, for a
// single-step front end that wants to disassemble before executing.
func (c *CPU) Peek() (uint32, error) {
	return c.fetch()
}

// Step retires exactly one instruction and reports whether the loop
// should continue. false is always paired with a non-nil *DecodeError
// classifying why: KindFetchEOF or KindBusError for a faulted memory
// access, KindIllegalOpcode/KindIllegalFunct for a bad decode, or
// KindHalt when pc reached zero after a clean retire.
func (c *CPU) Step() (bool, error) {
	inst, err := c.fetch()
	if err != nil {
		return false, err
	}
	c.PC += 4
	execErr := c.execute(inst)
	c.CSRs[cycle]++
	c.CSRs[instret]++
	c.CSRs[rdtime] = uint64(time.Since(c.start).Seconds())
	c.Regs[0] = 0
	if execErr != nil {
		return false, execErr
	}
	if c.PC == 0 {
		return false, halt()
	}
	return true, nil
}

// fetch reads the 32-bit instruction word at pc via the bus.
func (c *CPU) fetch() (uint32, error) {
	v, err := c.Bus.Load(c.PC, 32)
	if err != nil {
		return 0, fetchEOF(err)
	}
	return uint32(v), nil
}

func sext(value uint64, bits uint) uint64 {
	shift := 64 - bits
	return uint64(int64(value<<shift) >> shift)
}
