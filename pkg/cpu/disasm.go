package cpu

import "fmt"

// Disassemble renders a single instruction word as assembly text, for the
// CLI's single-step mode. It never fails: an instruction this package's
// execute would reject renders as "<illegal: ...>" instead.
func Disassemble(inst uint32) string {
	opcode := inst & 0x7f
	rd := (inst >> 7) & 0x1f
	funct3 := (inst >> 12) & 0x7
	rs1 := (inst >> 15) & 0x1f
	rs2 := (inst >> 20) & 0x1f
	funct7 := (inst >> 25) & 0x7f

	r := func(i uint32) string { return RegisterABINames[i] }

	switch opcode {
	case 0x03:
		names := map[uint32]string{0: "lb", 1: "lh", 2: "lw", 3: "ld", 4: "lbu", 5: "lhu", 6: "lwu"}
		if n, ok := names[funct3]; ok {
			return fmt.Sprintf("%s %s, %d(%s)", n, r(rd), int64(iImm(inst)), r(rs1))
		}
	case 0x23:
		names := map[uint32]string{0: "sb", 1: "sh", 2: "sw", 3: "sd"}
		if n, ok := names[funct3]; ok {
			return fmt.Sprintf("%s %s, %d(%s)", n, r(rs2), int64(sImm(inst)), r(rs1))
		}
	case 0x13:
		if n, ok := opImmName(funct3, funct7>>1); ok {
			return fmt.Sprintf("%s %s, %s, %d", n, r(rd), r(rs1), int64(iImm(inst)))
		}
	case 0x1B:
		if n, ok := opImmWordName(funct3, funct7); ok {
			return fmt.Sprintf("%s %s, %s, %d", n, r(rd), r(rs1), int64(iImm(inst)))
		}
	case 0x33:
		if n, ok := opName(funct3, funct7); ok {
			return fmt.Sprintf("%s %s, %s, %s", n, r(rd), r(rs1), r(rs2))
		}
	case 0x3B:
		if n, ok := opWordName(funct3, funct7); ok {
			return fmt.Sprintf("%s %s, %s, %s", n, r(rd), r(rs1), r(rs2))
		}
	case 0x63:
		names := map[uint32]string{0: "beq", 1: "bne", 4: "blt", 5: "bge", 6: "bltu", 7: "bgeu"}
		if n, ok := names[funct3]; ok {
			return fmt.Sprintf("%s %s, %s, %d", n, r(rs1), r(rs2), int64(bImm(inst)))
		}
	case 0x37:
		return fmt.Sprintf("lui %s, 0x%x", r(rd), uImm(inst)>>12)
	case 0x17:
		return fmt.Sprintf("auipc %s, 0x%x", r(rd), uImm(inst)>>12)
	case 0x6F:
		return fmt.Sprintf("jal %s, %d", r(rd), int64(jImm(inst)))
	case 0x67:
		return fmt.Sprintf("jalr %s, %d(%s)", r(rd), int64(iImm(inst)), r(rs1))
	case 0x73:
		names := map[uint32]string{1: "csrrw", 2: "csrrs", 3: "csrrc", 5: "csrrwi", 6: "csrrsi", 7: "csrrci"}
		if n, ok := names[funct3]; ok {
			csrAddr := (inst >> 20) & 0xfff
			return fmt.Sprintf("%s %s, 0x%x, %s", n, r(rd), csrAddr, r(rs1))
		}
	}
	return fmt.Sprintf("<illegal: opcode=0x%02x funct3=0x%x funct7=0x%x>", opcode, funct3, funct7)
}

// opImmName takes funct6 (funct7 with inst[25] already stripped, since that
// bit doubles as the shift amount's top bit on the 64-bit shift forms), not
// the raw 7-bit funct7.
func opImmName(funct3, funct6 uint32) (string, bool) {
	switch {
	case funct3 == 0x0:
		return "addi", true
	case funct3 == 0x4:
		return "xori", true
	case funct3 == 0x6:
		return "ori", true
	case funct3 == 0x7:
		return "andi", true
	case funct3 == 0x1 && funct6 == 0x00:
		return "slli", true
	case funct3 == 0x5 && funct6 == 0x00:
		return "srli", true
	case funct3 == 0x5 && funct6 == 0x10:
		return "srai", true
	case funct3 == 0x2:
		return "slti", true
	case funct3 == 0x3:
		return "sltiu", true
	}
	return "", false
}

func opImmWordName(funct3, funct7 uint32) (string, bool) {
	switch {
	case funct3 == 0x0:
		return "addiw", true
	case funct3 == 0x1 && funct7 == 0x00:
		return "slliw", true
	case funct3 == 0x5 && funct7 == 0x00:
		return "srliw", true
	case funct3 == 0x5 && funct7 == 0x20:
		return "sraiw", true
	}
	return "", false
}

func opName(funct3, funct7 uint32) (string, bool) {
	switch {
	case funct3 == 0x0 && funct7 == 0x00:
		return "add", true
	case funct3 == 0x0 && funct7 == 0x20:
		return "sub", true
	case funct3 == 0x4 && funct7 == 0x00:
		return "xor", true
	case funct3 == 0x6 && funct7 == 0x00:
		return "or", true
	case funct3 == 0x7 && funct7 == 0x00:
		return "and", true
	case funct3 == 0x1 && funct7 == 0x00:
		return "sll", true
	case funct3 == 0x5 && funct7 == 0x00:
		return "srl", true
	case funct3 == 0x5 && funct7 == 0x20:
		return "sra", true
	case funct3 == 0x2 && funct7 == 0x00:
		return "slt", true
	case funct3 == 0x3 && funct7 == 0x00:
		return "sltu", true
	}
	return "", false
}

func opWordName(funct3, funct7 uint32) (string, bool) {
	switch {
	case funct3 == 0x0 && funct7 == 0x00:
		return "addw", true
	case funct3 == 0x0 && funct7 == 0x20:
		return "subw", true
	case funct3 == 0x1 && funct7 == 0x00:
		return "sllw", true
	case funct3 == 0x5 && funct7 == 0x00:
		return "srlw", true
	case funct3 == 0x5 && funct7 == 0x20:
		return "sraw", true
	}
	return "", false
}
