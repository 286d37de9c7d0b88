package cpu_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rv64emu/rv64emu/pkg/cpu"
	"github.com/rv64emu/rv64emu/pkg/dram"
)

// The helpers below encode RV64I instruction words directly, the way a
// test harness driving this emulator would build small bare-metal test
// images without a real assembler.

func rType(opcode, rd, funct3, rs1, rs2, funct7 uint32) uint32 {
	return funct7<<25 | rs2<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func iType(opcode, rd, funct3, rs1 uint32, imm int32) uint32 {
	return uint32(imm)<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func sType(opcode, funct3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm)
	return (u>>5)<<25 | rs2<<20 | rs1<<15 | funct3<<12 | (u&0x1f)<<7 | opcode
}

func bType(opcode, funct3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm)
	return ((u>>12)&1)<<31 | ((u>>5)&0x3f)<<25 | rs2<<20 | rs1<<15 | funct3<<12 |
		((u>>1)&0xf)<<8 | ((u>>11)&1)<<7 | opcode
}

func uType(opcode, rd uint32, imm20 uint32) uint32 {
	return imm20<<12 | rd<<7 | opcode
}

func jType(opcode, rd uint32, imm int32) uint32 {
	u := uint32(imm)
	return ((u>>20)&1)<<31 | ((u>>1)&0x3ff)<<21 | ((u>>11)&1)<<20 | ((u>>12)&0xff)<<12 | rd<<7 | opcode
}

func addi(rd, rs1 uint32, imm int32) uint32 { return iType(0x13, rd, 0, rs1, imm) }
func andi(rd, rs1 uint32, imm int32) uint32 { return iType(0x13, rd, 0x7, rs1, imm) }
func sd(rs1, rs2 uint32, imm int32) uint32  { return sType(0x23, 3, rs1, rs2, imm) }
func ld(rd, rs1 uint32, imm int32) uint32   { return iType(0x03, rd, 3, rs1, imm) }
func bne(rs1, rs2 uint32, imm int32) uint32 { return bType(0x63, 1, rs1, rs2, imm) }
func lui(rd uint32, imm20 uint32) uint32    { return uType(0x37, rd, imm20) }
func jal(rd uint32, imm int32) uint32       { return jType(0x6F, rd, imm) }
func jalr(rd, rs1 uint32, imm int32) uint32 { return iType(0x67, rd, 0, rs1, imm) }
func csrrw(rd, rs1 uint32, csr uint32) uint32 {
	return uint32(csr)<<20 | rs1<<15 | 1<<12 | rd<<7 | 0x73
}
func csrrs(rd, rs1 uint32, csr uint32) uint32 {
	return uint32(csr)<<20 | rs1<<15 | 2<<12 | rd<<7 | 0x73
}
func csrrc(rd, rs1 uint32, csr uint32) uint32 {
	return uint32(csr)<<20 | rs1<<15 | 3<<12 | rd<<7 | 0x73
}

// The csrrwi/csrrsi/csrrci family carries a 5-bit immediate in the rs1
// field instead of a register index.
func csrrwi(rd, zimm uint32, csr uint32) uint32 {
	return uint32(csr)<<20 | zimm<<15 | 5<<12 | rd<<7 | 0x73
}
func csrrsi(rd, zimm uint32, csr uint32) uint32 {
	return uint32(csr)<<20 | zimm<<15 | 6<<12 | rd<<7 | 0x73
}
func csrrci(rd, zimm uint32, csr uint32) uint32 {
	return uint32(csr)<<20 | zimm<<15 | 7<<12 | rd<<7 | 0x73
}

func assemble(words ...uint32) []byte {
	out := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[4*i:], w)
	}
	return out
}

func newCPU(t *testing.T, words ...uint32) *cpu.CPU {
	t.Helper()
	c, err := cpu.New(assemble(words...))
	require.NoError(t, err)
	return c
}

func TestZeroRegisterInitialState(t *testing.T) {
	c := newCPU(t, jalr(0, 0, 0))
	require.Equal(t, uint64(0), c.Regs[0])
	require.Equal(t, dram.Base+dram.Size, c.Regs[2])
	require.Equal(t, dram.Base, c.PC)
}

// Scenario 1: addi chain.
func TestAddiChain(t *testing.T) {
	c := newCPU(t,
		addi(31, 0, 1),
		addi(31, 31, 2),
		addi(31, 31, 3),
		jalr(0, 0, 0), // halt: pc -> 0
	)
	require.NoError(t, c.Run())
	require.Equal(t, uint64(6), c.Regs[31])
	for i := 1; i < cpu.NumRegisters; i++ {
		if i == 2 || i == 31 {
			continue
		}
		require.Equalf(t, uint64(0), c.Regs[i], "register x%d", i)
	}
	require.Equal(t, dram.Base+dram.Size, c.Regs[2])
}

// Scenario 2: CSR read/modify/write. rd is kept distinct from rs1 in each
// op so the "old value" written back to rd can't clobber the source
// register before it's read for the write half of the same instruction.
func TestCSRReadModifyWrite(t *testing.T) {
	c := newCPU(t,
		addi(5, 0, 1),
		addi(6, 0, 2),
		addi(7, 0, 3),
		csrrw(8, 5, 0x100),  // csrs[0x100] = x5 (1); x8 = old (0)
		csrrs(9, 6, 0x105),  // csrs[0x105] |= x6 (2); x9 = old (0)
		csrrc(10, 7, 0x141), // csrs[0x141] &= x7 (3); x10 = old (0)
		jalr(0, 0, 0),
	)
	require.NoError(t, c.Run())
	require.Equal(t, uint64(1), c.Regs[5])
	require.Equal(t, uint64(2), c.Regs[6])
	require.Equal(t, uint64(3), c.Regs[7])
	require.Equal(t, uint64(0), c.Regs[8])
	require.Equal(t, uint64(0), c.Regs[9])
	require.Equal(t, uint64(0), c.Regs[10])
	require.Equal(t, uint64(1), c.CSRs[0x100])
	require.Equal(t, uint64(2), c.CSRs[0x105])
	// csrs[0x141] starts at zero, so AND-ing it with anything leaves it zero.
	require.Equal(t, uint64(0), c.CSRs[0x141])
}

// Scenario 3: little-endian store/load round trip through lui+addi+sd+ld.
// x2 (sp) seeds to dram.Base+dram.Size, one past the last valid byte, so
// the store/load offset must be negative to land inside DRAM.
func TestLittleEndianStoreLoad(t *testing.T) {
	c := newCPU(t,
		lui(5, 0x12345),   // x5 = 0x12345000 (sign-extended, fits in 32 bits)
		addi(5, 5, 0x678), // x5 = 0x12345678
		sd(2, 5, -0x100),  // [sp-0x100] = x5
		ld(6, 2, -0x100),  // x6 = [sp-0x100]
		jalr(0, 0, 0),
	)
	require.NoError(t, c.Run())
	require.Equal(t, uint64(0x12345678), c.Regs[5])
	require.Equal(t, c.Regs[5], c.Regs[6])
	addr := c.Regs[2] - 0x100
	off := int(addr - dram.Base)
	bytes := c.Bus.DRAM.Bytes()[off : off+8]
	require.Equal(t, byte(0x78), bytes[0])
	require.Equal(t, byte(0x56), bytes[1])
	require.Equal(t, byte(0x34), bytes[2])
	require.Equal(t, byte(0x12), bytes[3])
	require.Equal(t, byte(0x00), bytes[4])
	require.Equal(t, byte(0x00), bytes[7])
}

// Scenario 4: branch taken/not-taken loop.
func TestBranchLoop(t *testing.T) {
	c := newCPU(t,
		addi(5, 0, 5),
		addi(5, 5, -1), // loop target
		bne(5, 0, -4),
		jalr(0, 0, 0),
	)
	require.NoError(t, c.Run())
	require.Equal(t, uint64(0), c.Regs[5])
	// One addi(5,0,5), then five trips around (addi;bne) as x5 counts
	// 5->4->3->2->1->0, then the final jalr: 1 + 5*2 + 1 retired instructions.
	require.Equal(t, uint64(12), c.CSRs[0xC02])
}

// Scenario 5: jal linkage.
func TestJALLinkage(t *testing.T) {
	c := newCPU(t,
		jal(1, 8), // x1 = addr(jal)+4; pc jumps to addr(jal)+8
		addi(10, 0, 0xBAD), // skipped
		addi(20, 0, 7), // sentinel target
		jalr(0, 0, 0),
	)
	require.NoError(t, c.Run())
	require.Equal(t, dram.Base+4, c.Regs[1])
	require.Equal(t, uint64(7), c.Regs[20])
	require.Equal(t, uint64(0), c.Regs[10])
}

// Scenario 6: halt on zero pc.
func TestHaltOnZeroPC(t *testing.T) {
	c := newCPU(t, jalr(0, 0, 0))
	require.NoError(t, c.Run())
	require.Equal(t, uint64(0), c.PC)
}

// CSR overlay law: reading sie after writing mie/mideleg yields mie & mideleg;
// writing sie updates only the mideleg-selected bits of mie.
func TestCSROverlayLaw(t *testing.T) {
	c := newCPU(t,
		addi(5, 0, 0x0F), // v
		addi(6, 0, 0x03), // m
		csrrw(0, 5, 0x304), // mie = v
		csrrw(0, 6, 0x303), // mideleg = m
		csrrs(10, 0, 0x104), // x10 = sie (rs1=x0 means no write)
		addi(7, 0, 0x05), // x
		csrrw(0, 7, 0x104), // sie = x
		jalr(0, 0, 0),
	)
	require.NoError(t, c.Run())
	require.Equal(t, uint64(0x0F&0x03), c.Regs[10])
	v, m, x := uint64(0x0F), uint64(0x03), uint64(0x05)
	require.Equal(t, (v&^m)|(x&m), c.CSRs[0x304])
}

func TestSignExtension(t *testing.T) {
	c := newCPU(t,
		addi(31, 0, -1), // sext64(-1) == all ones
		jalr(0, 0, 0),
	)
	require.NoError(t, c.Run())
	require.Equal(t, ^uint64(0), c.Regs[31])
}

func TestSubEqualsAddNegative(t *testing.T) {
	a, b := uint32(12), uint32(13)
	c := newCPU(t,
		addi(5, 0, int32(a)),
		addi(6, 0, int32(b)),
		rType(0x33, 7, 0, 5, 6, 0x20), // sub x7, x5, x6
		addi(8, 6, -int32(b)*2),       // x8 = b + (-2b) == -b, used below
		rType(0x33, 9, 0, 5, 8, 0x00), // add x9, x5, x8 == a + (-b)
		jalr(0, 0, 0),
	)
	require.NoError(t, c.Run())
	require.Equal(t, c.Regs[7], c.Regs[9])
}

func TestShiftInstructions(t *testing.T) {
	c := newCPU(t,
		addi(5, 0, -8), // x5 = 0xFFFF...F8
		iType(0x13, 6, 0x5, 5, 2), // srli x6, x5, 2 (funct7=0x00 via imm bits)
		iType(0x13, 7, 0x5, 5, 0x20<<5|2), // srai x7, x5, 2
		iType(0x13, 8, 0x1, 5, 2),          // slli x8, x5, 2
		jalr(0, 0, 0),
	)
	require.NoError(t, c.Run())
	require.Equal(t, uint64(0xFFFF_FFFF_FFFF_FFF8)>>2, c.Regs[6])
	require.Equal(t, uint64(int64(int32(-8))>>2), c.Regs[7])
	require.Equal(t, uint64(0xFFFF_FFFF_FFFF_FFF8)<<2, c.Regs[8])
}

// inst[25] doubles as both shamt's top bit and funct7's bottom bit on the
// 64-bit shift forms; a shift amount of 40 (>= 32) must still decode as
// srli rather than being rejected as an illegal funct7.
func TestShiftAmountAboveThirtyTwoDoesNotFault(t *testing.T) {
	c := newCPU(t,
		addi(5, 0, -1),
		iType(0x13, 6, 0x5, 5, 40), // srli x6, x5, 40 (funct6 zero; shamt=40 sets inst[25], so raw funct7 is 0x01)
		jalr(0, 0, 0),
	)
	require.NoError(t, c.Run())
	require.Equal(t, ^uint64(0)>>40, c.Regs[6])
}

// csrrwi/csrrsi/csrrci read the uimm straight from the rs1 field rather
// than from a register.
func TestCSRImmediateVariants(t *testing.T) {
	c := newCPU(t,
		csrrwi(5, 0x0A, 0x140), // csrs[0x140] = 0x0A; x5 = old (0)
		csrrsi(6, 0x05, 0x140), // csrs[0x140] |= 0x05 -> 0x0F; x6 = old (0x0A)
		csrrci(7, 0x03, 0x140), // csrs[0x140] = old & 0x03 -> 0x03; x7 = old (0x0F)
		jalr(0, 0, 0),
	)
	require.NoError(t, c.Run())
	require.Equal(t, uint64(0), c.Regs[5])
	require.Equal(t, uint64(0x0A), c.Regs[6])
	require.Equal(t, uint64(0x0F), c.Regs[7])
	require.Equal(t, uint64(0x03), c.CSRs[0x140])
}

func TestIllegalOpcodeStopsRunCleanly(t *testing.T) {
	c := newCPU(t, 0x0000_0000) // opcode 0 is illegal
	require.NoError(t, c.Run())
	require.Equal(t, dram.Base+4, c.PC) // pc advanced before the illegal decode

	c2 := newCPU(t, 0x0000_0000)
	cont, err := c2.Step()
	require.False(t, cont)
	var decodeErr *cpu.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	require.Equal(t, cpu.KindIllegalOpcode, decodeErr.Kind)
}

func TestFetchEOFIsCleanStop(t *testing.T) {
	c, err := cpu.New(nil)
	require.NoError(t, err)
	c.PC = dram.Base + dram.Size // one past the end: fetch fails immediately
	require.NoError(t, c.Run())

	cont, stepErr := c.Step()
	require.False(t, cont)
	var decodeErr *cpu.DecodeError
	require.ErrorAs(t, stepErr, &decodeErr)
	require.Equal(t, cpu.KindFetchEOF, decodeErr.Kind)
}

// Step surfaces the pc==0 stop condition as a *DecodeError tagged
// KindHalt, so a caller that wants to distinguish "halted" from
// "faulted" doesn't have to inspect pc itself.
func TestStepReportsHaltKind(t *testing.T) {
	c := newCPU(t, jalr(0, 0, 0))
	cont, err := c.Step()
	require.False(t, cont)
	var decodeErr *cpu.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	require.Equal(t, cpu.KindHalt, decodeErr.Kind)
	require.ErrorIs(t, err, cpu.ErrHaltSentinel)
}
