package cpu

// execute decodes and runs one instruction word, mutating c in place. It
// returns an error (always a *DecodeError) when the instruction is
// illegal or a memory access faults; on success it returns nil. The
// caller (Step) is responsible for the retire bookkeeping (counters,
// regs[0] reset, pc==0 halt check): none of that happens in here.
func (c *CPU) execute(inst uint32) error {
	opcode := inst & 0x7f
	rd := (inst >> 7) & 0x1f
	funct3 := (inst >> 12) & 0x7
	rs1 := (inst >> 15) & 0x1f
	rs2 := (inst >> 20) & 0x1f
	funct7 := (inst >> 25) & 0x7f

	switch opcode {
	case 0:
		return illegalOpcode(inst)
	case 0x03:
		return c.execLoad(inst, rd, rs1, funct3)
	case 0x23:
		return c.execStore(inst, rs1, rs2, funct3)
	case 0x13:
		return c.execOpImm(inst, rd, rs1, funct3, funct7)
	case 0x1B:
		return c.execOpImmWord(inst, rd, rs1, funct3, funct7)
	case 0x33:
		return c.execOp(rd, rs1, rs2, funct3, funct7)
	case 0x3B:
		return c.execOpWord(rd, rs1, rs2, funct3, funct7)
	case 0x63:
		return c.execBranch(inst, rs1, rs2, funct3)
	case 0x37:
		return c.execLUI(inst, rd)
	case 0x17:
		return c.execAUIPC(inst, rd)
	case 0x6F:
		return c.execJAL(inst, rd)
	case 0x67:
		return c.execJALR(inst, rd, rs1)
	case 0x73:
		return c.execSystem(inst, rd, rs1, funct3)
	default:
		return illegalOpcode(inst)
	}
}

// iImm reassembles the I-type immediate: sext(inst[31:20]).
func iImm(inst uint32) uint64 {
	return uint64(int64(int32(inst)) >> 20)
}

// sImm reassembles the S-type immediate: sext(inst[31:25]) << 5 | inst[11:7].
func sImm(inst uint32) uint64 {
	hi := uint64(int64(int32(inst&0xfe000000)) >> 20)
	lo := uint64((inst >> 7) & 0x1f)
	return hi | lo
}

// bImm reassembles the B-type immediate (bit 0 is always zero).
func bImm(inst uint32) uint64 {
	return uint64(int64(int32(inst&0x80000000))>>19) |
		uint64((inst&0x80)<<4) |
		uint64((inst>>20)&0x7e0) |
		uint64((inst>>7)&0x1e)
}

// uImm reassembles the U-type immediate: inst[31:12] << 12, sign-extended.
func uImm(inst uint32) uint64 {
	return uint64(int64(int32(inst & 0xfffff000)))
}

// jImm reassembles the J-type immediate.
func jImm(inst uint32) uint64 {
	return uint64(int64(int32(inst&0x80000000))>>11) |
		uint64(inst&0xff000) |
		uint64((inst>>9)&0x800) |
		uint64((inst>>20)&0x7fe)
}

func (c *CPU) execLoad(inst uint32, rd, rs1, funct3 uint32) error {
	imm := iImm(inst)
	addr := c.Regs[rs1] + imm
	var mnemonic string
	var value uint64
	var err error
	switch funct3 {
	case 0: // lb
		mnemonic = "LB"
		var v uint64
		v, err = c.Bus.Load(addr, 8)
		value = sext(v, 8)
	case 1: // lh
		mnemonic = "LH"
		var v uint64
		v, err = c.Bus.Load(addr, 16)
		value = sext(v, 16)
	case 2: // lw
		mnemonic = "LW"
		var v uint64
		v, err = c.Bus.Load(addr, 32)
		value = sext(v, 32)
	case 3: // ld
		mnemonic = "LD"
		value, err = c.Bus.Load(addr, 64)
	case 4: // lbu
		mnemonic = "LBU"
		value, err = c.Bus.Load(addr, 8)
	case 5: // lhu
		mnemonic = "LHU"
		value, err = c.Bus.Load(addr, 16)
	case 6: // lwu
		mnemonic = "LWU"
		value, err = c.Bus.Load(addr, 32)
	default:
		return illegalFunct(0x03, funct3, 0)
	}
	if err != nil {
		return busError(err)
	}
	c.Regs[rd] = value
	c.trace(mnemonic, decodedFields{opcode: 0x03, rd: rd, rs1: rs1, funct3: funct3, imm: imm})
	return nil
}

func (c *CPU) execStore(inst uint32, rs1, rs2, funct3 uint32) error {
	imm := sImm(inst)
	addr := c.Regs[rs1] + imm
	var width uint64
	var mnemonic string
	switch funct3 {
	case 0:
		width, mnemonic = 8, "SB"
	case 1:
		width, mnemonic = 16, "SH"
	case 2:
		width, mnemonic = 32, "SW"
	case 3:
		width, mnemonic = 64, "SD"
	default:
		return illegalFunct(0x23, funct3, 0)
	}
	if err := c.Bus.Store(addr, width, c.Regs[rs2]); err != nil {
		return busError(err)
	}
	c.trace(mnemonic, decodedFields{opcode: 0x23, rs1: rs1, rs2: rs2, funct3: funct3, imm: imm})
	return nil
}

func (c *CPU) execOpImm(inst uint32, rd, rs1, funct3, funct7 uint32) error {
	imm := iImm(inst)
	shamt := uint32(imm & 0x3f)
	// The 64-bit shift forms take a 6-bit shamt (imm[5:0] = inst[25:20]),
	// so inst[25] is simultaneously shamt's top bit and funct7's bottom
	// bit. Comparing the raw 7-bit funct7 against 0x00/0x20 would spill
	// shamt's MSB into the logical/arithmetic selector for shamt 32-63;
	// drop that bit and compare the remaining 6-bit funct6 instead.
	funct6 := funct7 >> 1
	var mnemonic string
	switch {
	case funct3 == 0x0:
		mnemonic = "ADDI"
		c.Regs[rd] = c.Regs[rs1] + imm
	case funct3 == 0x4:
		mnemonic = "XORI"
		c.Regs[rd] = c.Regs[rs1] ^ imm
	case funct3 == 0x6:
		mnemonic = "ORI"
		c.Regs[rd] = c.Regs[rs1] | imm
	case funct3 == 0x7:
		mnemonic = "ANDI"
		c.Regs[rd] = c.Regs[rs1] & imm
	case funct3 == 0x1 && funct6 == 0x00:
		mnemonic = "SLLI"
		c.Regs[rd] = c.Regs[rs1] << shamt
	case funct3 == 0x5 && funct6 == 0x00:
		mnemonic = "SRLI"
		c.Regs[rd] = c.Regs[rs1] >> shamt
	case funct3 == 0x5 && funct6 == 0x10:
		mnemonic = "SRAI"
		c.Regs[rd] = uint64(int64(c.Regs[rs1]) >> shamt)
	case funct3 == 0x2:
		mnemonic = "SLTI"
		c.Regs[rd] = boolToU64(int64(c.Regs[rs1]) < int64(imm))
	case funct3 == 0x3:
		mnemonic = "SLTIU"
		c.Regs[rd] = boolToU64(c.Regs[rs1] < imm)
	default:
		return illegalFunct(0x13, funct3, funct7)
	}
	c.trace(mnemonic, decodedFields{opcode: 0x13, rd: rd, rs1: rs1, funct3: funct3, funct7: funct7, imm: imm, shamt: shamt, hasShamt: true})
	return nil
}

func (c *CPU) execOpImmWord(inst uint32, rd, rs1, funct3, funct7 uint32) error {
	imm := iImm(inst)
	shamt := uint32(imm & 0x1f)
	var mnemonic string
	switch {
	case funct3 == 0x0:
		mnemonic = "ADDIW"
		c.Regs[rd] = sext(uint64(uint32(c.Regs[rs1])+uint32(imm)), 32)
	case funct3 == 0x1 && funct7 == 0x00:
		mnemonic = "SLLIW"
		c.Regs[rd] = sext(uint64(uint32(c.Regs[rs1])<<shamt), 32)
	case funct3 == 0x5 && funct7 == 0x00:
		mnemonic = "SRLIW"
		c.Regs[rd] = sext(uint64(uint32(c.Regs[rs1])>>shamt), 32)
	case funct3 == 0x5 && funct7 == 0x20:
		mnemonic = "SRAIW"
		c.Regs[rd] = uint64(int64(int32(c.Regs[rs1]) >> shamt))
	default:
		return illegalFunct(0x1B, funct3, funct7)
	}
	c.trace(mnemonic, decodedFields{opcode: 0x1B, rd: rd, rs1: rs1, funct3: funct3, funct7: funct7, imm: imm, shamt: shamt, hasShamt: true})
	return nil
}

func (c *CPU) execOp(rd, rs1, rs2, funct3, funct7 uint32) error {
	shamt := uint32(c.Regs[rs2] & 0x3f)
	var mnemonic string
	switch {
	case funct3 == 0x0 && funct7 == 0x00:
		mnemonic = "ADD"
		c.Regs[rd] = c.Regs[rs1] + c.Regs[rs2]
	case funct3 == 0x0 && funct7 == 0x20:
		mnemonic = "SUB"
		c.Regs[rd] = c.Regs[rs1] - c.Regs[rs2]
	case funct3 == 0x4 && funct7 == 0x00:
		mnemonic = "XOR"
		c.Regs[rd] = c.Regs[rs1] ^ c.Regs[rs2]
	case funct3 == 0x6 && funct7 == 0x00:
		mnemonic = "OR"
		c.Regs[rd] = c.Regs[rs1] | c.Regs[rs2]
	case funct3 == 0x7 && funct7 == 0x00:
		mnemonic = "AND"
		c.Regs[rd] = c.Regs[rs1] & c.Regs[rs2]
	case funct3 == 0x1 && funct7 == 0x00:
		mnemonic = "SLL"
		c.Regs[rd] = c.Regs[rs1] << shamt
	case funct3 == 0x5 && funct7 == 0x00:
		mnemonic = "SRL"
		c.Regs[rd] = c.Regs[rs1] >> shamt
	case funct3 == 0x5 && funct7 == 0x20:
		mnemonic = "SRA"
		c.Regs[rd] = uint64(int64(c.Regs[rs1]) >> shamt)
	case funct3 == 0x2 && funct7 == 0x00:
		mnemonic = "SLT"
		c.Regs[rd] = boolToU64(int64(c.Regs[rs1]) < int64(c.Regs[rs2]))
	case funct3 == 0x3 && funct7 == 0x00:
		mnemonic = "SLTU"
		c.Regs[rd] = boolToU64(c.Regs[rs1] < c.Regs[rs2])
	default:
		return illegalFunct(0x33, funct3, funct7)
	}
	c.trace(mnemonic, decodedFields{opcode: 0x33, rd: rd, rs1: rs1, rs2: rs2, funct3: funct3, funct7: funct7, shamt: shamt, hasShamt: true})
	return nil
}

func (c *CPU) execOpWord(rd, rs1, rs2, funct3, funct7 uint32) error {
	shamt := uint32(c.Regs[rs2] & 0x1f)
	var mnemonic string
	switch {
	case funct3 == 0x0 && funct7 == 0x00:
		mnemonic = "ADDW"
		c.Regs[rd] = sext(uint64(uint32(c.Regs[rs1])+uint32(c.Regs[rs2])), 32)
	case funct3 == 0x0 && funct7 == 0x20:
		mnemonic = "SUBW"
		c.Regs[rd] = sext(uint64(uint32(c.Regs[rs1])-uint32(c.Regs[rs2])), 32)
	case funct3 == 0x1 && funct7 == 0x00:
		mnemonic = "SLLW"
		c.Regs[rd] = sext(uint64(uint32(c.Regs[rs1])<<shamt), 32)
	case funct3 == 0x5 && funct7 == 0x00:
		mnemonic = "SRLW"
		c.Regs[rd] = sext(uint64(uint32(c.Regs[rs1])>>shamt), 32)
	case funct3 == 0x5 && funct7 == 0x20:
		mnemonic = "SRAW"
		c.Regs[rd] = uint64(int64(int32(c.Regs[rs1]) >> shamt))
	default:
		return illegalFunct(0x3B, funct3, funct7)
	}
	c.trace(mnemonic, decodedFields{opcode: 0x3B, rd: rd, rs1: rs1, rs2: rs2, funct3: funct3, funct7: funct7, shamt: shamt, hasShamt: true})
	return nil
}

func (c *CPU) execBranch(inst uint32, rs1, rs2, funct3 uint32) error {
	imm := bImm(inst)
	var taken bool
	var mnemonic string
	switch funct3 {
	case 0:
		mnemonic, taken = "BEQ", c.Regs[rs1] == c.Regs[rs2]
	case 1:
		mnemonic, taken = "BNE", c.Regs[rs1] != c.Regs[rs2]
	case 4:
		mnemonic, taken = "BLT", int64(c.Regs[rs1]) < int64(c.Regs[rs2])
	case 5:
		mnemonic, taken = "BGE", int64(c.Regs[rs1]) >= int64(c.Regs[rs2])
	case 6:
		mnemonic, taken = "BLTU", c.Regs[rs1] < c.Regs[rs2]
	case 7:
		mnemonic, taken = "BGEU", c.Regs[rs1] >= c.Regs[rs2]
	default:
		return illegalFunct(0x63, funct3, 0)
	}
	if taken {
		c.PC = c.PC + imm - 4
	}
	c.trace(mnemonic, decodedFields{opcode: 0x63, rs1: rs1, rs2: rs2, funct3: funct3, imm: imm})
	return nil
}

func (c *CPU) execLUI(inst uint32, rd uint32) error {
	imm := uImm(inst)
	c.Regs[rd] = imm
	c.trace("LUI", decodedFields{opcode: 0x37, rd: rd, imm: imm})
	return nil
}

// execAUIPC computes pc_of_instruction + sext64(imm). pc has already
// been advanced by 4 in Step, so the instruction's own address is pc-4.
func (c *CPU) execAUIPC(inst uint32, rd uint32) error {
	imm := uImm(inst)
	c.Regs[rd] = (c.PC - 4) + imm
	c.trace("AUIPC", decodedFields{opcode: 0x17, rd: rd, imm: imm})
	return nil
}

func (c *CPU) execJAL(inst uint32, rd uint32) error {
	imm := jImm(inst)
	c.Regs[rd] = c.PC
	c.PC = c.PC + imm - 4
	c.trace("JAL", decodedFields{opcode: 0x6F, rd: rd, imm: imm})
	return nil
}

func (c *CPU) execJALR(inst uint32, rd, rs1 uint32) error {
	imm := iImm(inst)
	c.Regs[rd] = c.PC
	c.PC = (c.Regs[rs1] + imm) &^ 1
	c.trace("JALR", decodedFields{opcode: 0x67, rd: rd, rs1: rs1, imm: imm})
	return nil
}

func (c *CPU) execSystem(inst uint32, rd, rs1, funct3 uint32) error {
	csrAddr := uint64(inst>>20) & 0xfff
	zimm := uint64(rs1)
	var mnemonic string
	var old uint64
	switch funct3 {
	case 1: // csrrw
		mnemonic = "CSRRW"
		if rd != 0 {
			old = c.loadCSR(csrAddr)
			c.storeCSR(csrAddr, c.Regs[rs1])
			c.Regs[rd] = old
		} else {
			c.storeCSR(csrAddr, c.Regs[rs1])
		}
	case 2: // csrrs
		mnemonic = "CSRRS"
		old = c.loadCSR(csrAddr)
		c.Regs[rd] = old
		if rs1 != 0 {
			c.storeCSR(csrAddr, old|c.Regs[rs1])
		}
	case 3: // csrrc
		mnemonic = "CSRRC"
		old = c.loadCSR(csrAddr)
		c.Regs[rd] = old
		if rs1 != 0 {
			c.storeCSR(csrAddr, old&c.Regs[rs1])
		}
	case 5: // csrrwi
		mnemonic = "CSRRWI"
		if rd != 0 {
			old = c.loadCSR(csrAddr)
			c.storeCSR(csrAddr, zimm)
			c.Regs[rd] = old
		} else {
			c.storeCSR(csrAddr, zimm)
		}
	case 6: // csrrsi
		mnemonic = "CSRRSI"
		old = c.loadCSR(csrAddr)
		c.Regs[rd] = old
		if zimm != 0 {
			c.storeCSR(csrAddr, old|zimm)
		}
	case 7: // csrrci
		mnemonic = "CSRRCI"
		old = c.loadCSR(csrAddr)
		c.Regs[rd] = old
		if zimm != 0 {
			c.storeCSR(csrAddr, old&zimm)
		}
	default:
		return illegalFunct(0x73, funct3, 0)
	}
	c.trace(mnemonic, decodedFields{opcode: 0x73, rd: rd, rs1: rs1, funct3: funct3, csrAddr: csrAddr, csr: old, hasCSR: true})
	return nil
}

func boolToU64(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}
