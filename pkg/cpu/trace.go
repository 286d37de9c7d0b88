package cpu

import "github.com/sirupsen/logrus"

// decodedFields is what spec §6 calls the trace surface: the decoded
// fields of one instruction plus the mnemonic, carried as structured
// logrus fields rather than a bespoke event type so any logrus-compatible
// sink (JSON, text, a hook shipping to an external collector) works
// without this package knowing about it.
type decodedFields struct {
	opcode   uint32
	rd       uint32
	rs1      uint32
	rs2      uint32
	funct3   uint32
	funct7   uint32
	imm      uint64
	shamt    uint32
	csrAddr  uint64
	csr      uint64
	hasCSR   bool
	hasShamt bool
}

func (c *CPU) trace(mnemonic string, f decodedFields) {
	if !c.Log.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	fields := logrus.Fields{
		"opcode": f.opcode,
		"rd":     f.rd,
		"rs1":    f.rs1,
		"rs2":    f.rs2,
		"funct3": f.funct3,
		"funct7": f.funct7,
		"imm":    f.imm,
		"pc":     c.PC,
	}
	if f.hasShamt {
		fields["shamt"] = f.shamt
	}
	if f.hasCSR {
		fields["csr_addr"] = f.csrAddr
		fields["csr"] = f.csr
	}
	c.Log.WithFields(fields).Debug(mnemonic)
}
