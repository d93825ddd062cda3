// Package decode implements the RV32IM instruction decoder: a switch on
// (opcode, funct3, funct7) that expands a 32-bit
// instruction word into the control signals the pipeline consumes
// (spec §4.8). Unknown encodings decode to a NOP bubble.
package decode

import (
	"fmt"

	"github.com/go-logr/logr"
)

// ImmType selects which immediate-encoding the instruction uses.
type ImmType uint8

// Immediate encodings.
const (
	ImmNone ImmType = iota
	ImmI
	ImmS
	ImmB
	ImmU
	ImmJ
)

// AluOp selects the ALU function for EX.
type AluOp uint8

// ALU operations.
const (
	AluADD AluOp = iota
	AluSUB
	AluSLL
	AluSLT
	AluSLTU
	AluXOR
	AluSRL
	AluSRA
	AluOR
	AluAND
	AluPASS // pass op1 through unchanged; no decoded instruction selects it (LUI and the JAL/JALR link value use AluADD)
)

// Op1Sel selects the EX first ALU operand.
type Op1Sel uint8

// First-operand sources.
const (
	Op1RS1 Op1Sel = iota
	Op1PC
	Op1Zero
)

// Op2Sel selects the EX second ALU operand.
type Op2Sel uint8

// Second-operand sources.
const (
	Op2RS2 Op2Sel = iota
	Op2Imm
	Op2Four
)

// MemOp classifies the MEM-stage memory access.
type MemOp uint8

// Memory operation kinds.
const (
	MemNone MemOp = iota
	MemLoad
	MemStore
)

// MemWidth is the load/store access width.
type MemWidth uint8

// Memory access widths.
const (
	WidthByte MemWidth = iota
	WidthHalf
	WidthWord
)

// BranchType classifies control-flow instructions.
type BranchType uint8

// Branch/jump kinds.
const (
	BranchNone BranchType = iota
	BranchBEQ
	BranchBNE
	BranchBLT
	BranchBGE
	BranchBLTU
	BranchBGEU
	BranchJAL
	BranchJALR
)

// Instruction is the fully decoded control-signal bundle for one
// instruction word, as produced by ID (spec §4.6, §4.8).
type Instruction struct {
	Raw   uint32
	Valid bool // false => unrecognized encoding, treated as NOP

	Rd, Rs1, Rs2 uint8
	UsesRs1      bool
	UsesRs2      bool
	RegWrite     bool

	ImmType ImmType
	Imm     int32

	AluOp AluOp
	Op1   Op1Sel
	Op2   Op2Sel

	MemOp     MemOp
	MemWidth  MemWidth
	MemSigned bool

	Branch BranchType

	IsMul      bool
	MulHigh    bool // MULH/MULHSU/MULHU want bits [63:32]
	MulSigned1 bool
	MulSigned2 bool

	IsDiv     bool
	DivSigned bool
	DivRem    bool // REM/REMU rather than DIV/DIVU

	IsEbreak bool
}

func bits(word uint32, hi, lo uint) uint32 {
	return (word >> lo) & ((1 << (hi - lo + 1)) - 1)
}

func signExtend(v uint32, bit uint) int32 {
	shift := 31 - bit
	return int32(v<<shift) >> shift
}

func immI(word uint32) int32 {
	return signExtend(bits(word, 31, 20), 11)
}

func immS(word uint32) int32 {
	v := (bits(word, 31, 25) << 5) | bits(word, 11, 7)
	return signExtend(v, 11)
}

func immB(word uint32) int32 {
	v := (bits(word, 31, 31) << 12) | (bits(word, 7, 7) << 11) |
		(bits(word, 30, 25) << 5) | (bits(word, 11, 8) << 1)
	return signExtend(v, 12)
}

func immU(word uint32) int32 {
	return int32(word & 0xFFFFF000)
}

func immJ(word uint32) int32 {
	v := (bits(word, 31, 31) << 20) | (bits(word, 19, 12) << 12) |
		(bits(word, 20, 20) << 11) | (bits(word, 30, 21) << 1)
	return signExtend(v, 20)
}

func rd(word uint32) uint8  { return uint8(bits(word, 11, 7)) }
func rs1(word uint32) uint8 { return uint8(bits(word, 19, 15)) }
func rs2(word uint32) uint8 { return uint8(bits(word, 24, 20)) }
func f3(word uint32) uint32 { return bits(word, 14, 12) }
func f7(word uint32) uint32 { return bits(word, 31, 25) }

const (
	opLoad   = 0b0000011
	opImm    = 0b0010011
	opAUIPC  = 0b0010111
	opStore  = 0b0100011
	opReg    = 0b0110011
	opLUI    = 0b0110111
	opBranch = 0b1100011
	opJALR   = 0b1100111
	opJAL    = 0b1101111
	opSystem = 0b1110011
)

// Decoder decodes RV32IM machine code into control-signal bundles.
type Decoder struct {
	logger logr.Logger
}

// NewDecoder creates a new RV32IM instruction decoder. Decode misses are
// discarded by default; use WithLogger to have them logged (spec §7: "a
// warning is logged" on decode miss).
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{logger: logr.Discard()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DecoderOption configures a Decoder at construction time.
type DecoderOption func(*Decoder)

// WithLogger attaches a logr.Logger that receives a warning for every
// instruction word that fails to decode.
func WithLogger(l logr.Logger) DecoderOption {
	return func(d *Decoder) { d.logger = l }
}

// Decode decodes a 32-bit instruction word. An instruction matching no
// table row is returned as NOP() (Valid=false, no register write, no
// memory access, no branch).
func (d *Decoder) Decode(word uint32) *Instruction {
	opcode := bits(word, 6, 0)
	funct3 := f3(word)
	funct7 := f7(word)

	inst := Instruction{Raw: word}

	switch opcode {
	case opLUI:
		inst.Valid = true
		inst.Rd = rd(word)
		inst.RegWrite = inst.Rd != 0
		inst.ImmType = ImmU
		inst.Imm = immU(word)
		inst.Op1 = Op1Zero
		inst.Op2 = Op2Imm
		inst.AluOp = AluADD

	case opAUIPC:
		inst.Valid = true
		inst.Rd = rd(word)
		inst.RegWrite = inst.Rd != 0
		inst.ImmType = ImmU
		inst.Imm = immU(word)
		inst.Op1 = Op1PC
		inst.Op2 = Op2Imm
		inst.AluOp = AluADD

	case opJAL:
		inst.Valid = true
		inst.Rd = rd(word)
		inst.RegWrite = inst.Rd != 0
		inst.ImmType = ImmJ
		inst.Imm = immJ(word)
		inst.Branch = BranchJAL
		inst.Op1 = Op1PC
		inst.Op2 = Op2Four
		inst.AluOp = AluADD // ALU computes link value PC+4

	case opJALR:
		if funct3 == 0 {
			inst.Valid = true
			inst.Rd = rd(word)
			inst.Rs1 = rs1(word)
			inst.UsesRs1 = true
			inst.RegWrite = inst.Rd != 0
			inst.ImmType = ImmI
			inst.Imm = immI(word)
			inst.Branch = BranchJALR
			inst.Op1 = Op1PC
			inst.Op2 = Op2Four
			inst.AluOp = AluADD
		}

	case opBranch:
		bt := branchFunct3(funct3)
		if bt != BranchNone {
			inst.Valid = true
			inst.Rs1 = rs1(word)
			inst.Rs2 = rs2(word)
			inst.UsesRs1 = true
			inst.UsesRs2 = true
			inst.ImmType = ImmB
			inst.Imm = immB(word)
			inst.Branch = bt
		}

	case opLoad:
		width, signed, ok := loadFunct3(funct3)
		if ok {
			inst.Valid = true
			inst.Rd = rd(word)
			inst.Rs1 = rs1(word)
			inst.UsesRs1 = true
			inst.RegWrite = inst.Rd != 0
			inst.ImmType = ImmI
			inst.Imm = immI(word)
			inst.MemOp = MemLoad
			inst.MemWidth = width
			inst.MemSigned = signed
			inst.Op1 = Op1RS1
			inst.Op2 = Op2Imm
			inst.AluOp = AluADD
		}

	case opStore:
		width, ok := storeFunct3(funct3)
		if ok {
			inst.Valid = true
			inst.Rs1 = rs1(word)
			inst.Rs2 = rs2(word)
			inst.UsesRs1 = true
			inst.UsesRs2 = true
			inst.ImmType = ImmS
			inst.Imm = immS(word)
			inst.MemOp = MemStore
			inst.MemWidth = width
			inst.Op1 = Op1RS1
			inst.Op2 = Op2Imm
			inst.AluOp = AluADD
		}

	case opImm:
		d.decodeOpImm(word, funct3, &inst)

	case opReg:
		d.decodeOpReg(word, funct3, funct7, &inst)

	case opSystem:
		if funct3 == 0 && rd(word) == 0 && rs1(word) == 0 {
			imm := bits(word, 31, 20)
			switch imm {
			case 0x000: // ECALL: decoded as NOP in this scope (spec §6).
				inst.Valid = true
			case 0x001: // EBREAK: halts the simulator (spec §4.6/§6).
				inst.Valid = true
				inst.IsEbreak = true
			}
		}
	}

	if !inst.Valid {
		d.logger.Info("decode miss: instruction word matched no table row, treating as NOP",
			"word", fmt.Sprintf("0x%08X", word))
		return NOP()
	}

	return &inst
}

func branchFunct3(f3 uint32) BranchType {
	switch f3 {
	case 0b000:
		return BranchBEQ
	case 0b001:
		return BranchBNE
	case 0b100:
		return BranchBLT
	case 0b101:
		return BranchBGE
	case 0b110:
		return BranchBLTU
	case 0b111:
		return BranchBGEU
	default:
		return BranchNone
	}
}

func loadFunct3(f3 uint32) (MemWidth, bool, bool) {
	switch f3 {
	case 0b000:
		return WidthByte, true, true
	case 0b001:
		return WidthHalf, true, true
	case 0b010:
		return WidthWord, false, true
	case 0b100:
		return WidthByte, false, true
	case 0b101:
		return WidthHalf, false, true
	default:
		return 0, false, false
	}
}

func storeFunct3(f3 uint32) (MemWidth, bool) {
	switch f3 {
	case 0b000:
		return WidthByte, true
	case 0b001:
		return WidthHalf, true
	case 0b010:
		return WidthWord, true
	default:
		return 0, false
	}
}

// decodeOpImm handles the register-immediate ALU opcode (ADDI, SLTI, ...).
func (d *Decoder) decodeOpImm(word uint32, funct3 uint32, inst *Instruction) {
	inst.Rd = rd(word)
	inst.Rs1 = rs1(word)
	inst.UsesRs1 = true
	inst.RegWrite = inst.Rd != 0
	inst.ImmType = ImmI
	inst.Op1 = Op1RS1
	inst.Op2 = Op2Imm

	shamt := int32(bits(word, 24, 20))
	funct7 := f7(word)

	switch funct3 {
	case 0b000:
		inst.Valid = true
		inst.AluOp = AluADD
		inst.Imm = immI(word)
	case 0b010:
		inst.Valid = true
		inst.AluOp = AluSLT
		inst.Imm = immI(word)
	case 0b011:
		inst.Valid = true
		inst.AluOp = AluSLTU
		inst.Imm = immI(word)
	case 0b100:
		inst.Valid = true
		inst.AluOp = AluXOR
		inst.Imm = immI(word)
	case 0b110:
		inst.Valid = true
		inst.AluOp = AluOR
		inst.Imm = immI(word)
	case 0b111:
		inst.Valid = true
		inst.AluOp = AluAND
		inst.Imm = immI(word)
	case 0b001:
		if funct7 == 0b0000000 {
			inst.Valid = true
			inst.AluOp = AluSLL
			inst.Imm = shamt
		}
	case 0b101:
		switch funct7 {
		case 0b0000000:
			inst.Valid = true
			inst.AluOp = AluSRL
			inst.Imm = shamt
		case 0b0100000:
			inst.Valid = true
			inst.AluOp = AluSRA
			inst.Imm = shamt
		}
	}
}

// decodeOpReg handles the register-register opcode: base ALU ops plus
// the complete RV32M multiply/divide extension (spec §4.3/§4.4).
func (d *Decoder) decodeOpReg(word uint32, funct3, funct7 uint32, inst *Instruction) {
	inst.Rd = rd(word)
	inst.Rs1 = rs1(word)
	inst.Rs2 = rs2(word)
	inst.UsesRs1 = true
	inst.UsesRs2 = true
	inst.RegWrite = inst.Rd != 0
	inst.Op1 = Op1RS1
	inst.Op2 = Op2RS2

	if funct7 == 0b0000001 {
		d.decodeMulDiv(funct3, inst)
		return
	}

	switch {
	case funct3 == 0b000 && funct7 == 0b0000000:
		inst.Valid = true
		inst.AluOp = AluADD
	case funct3 == 0b000 && funct7 == 0b0100000:
		inst.Valid = true
		inst.AluOp = AluSUB
	case funct3 == 0b001 && funct7 == 0b0000000:
		inst.Valid = true
		inst.AluOp = AluSLL
	case funct3 == 0b010 && funct7 == 0b0000000:
		inst.Valid = true
		inst.AluOp = AluSLT
	case funct3 == 0b011 && funct7 == 0b0000000:
		inst.Valid = true
		inst.AluOp = AluSLTU
	case funct3 == 0b100 && funct7 == 0b0000000:
		inst.Valid = true
		inst.AluOp = AluXOR
	case funct3 == 0b101 && funct7 == 0b0000000:
		inst.Valid = true
		inst.AluOp = AluSRL
	case funct3 == 0b101 && funct7 == 0b0100000:
		inst.Valid = true
		inst.AluOp = AluSRA
	case funct3 == 0b110 && funct7 == 0b0000000:
		inst.Valid = true
		inst.AluOp = AluOR
	case funct3 == 0b111 && funct7 == 0b0000000:
		inst.Valid = true
		inst.AluOp = AluAND
	}
}

func (d *Decoder) decodeMulDiv(funct3 uint32, inst *Instruction) {
	switch funct3 {
	case 0b000: // MUL
		inst.Valid = true
		inst.IsMul = true
		inst.MulSigned1, inst.MulSigned2 = true, true
	case 0b001: // MULH
		inst.Valid = true
		inst.IsMul = true
		inst.MulHigh = true
		inst.MulSigned1, inst.MulSigned2 = true, true
	case 0b010: // MULHSU
		inst.Valid = true
		inst.IsMul = true
		inst.MulHigh = true
		inst.MulSigned1, inst.MulSigned2 = true, false
	case 0b011: // MULHU
		inst.Valid = true
		inst.IsMul = true
		inst.MulHigh = true
		inst.MulSigned1, inst.MulSigned2 = false, false
	case 0b100: // DIV
		inst.Valid = true
		inst.IsDiv = true
		inst.DivSigned = true
	case 0b101: // DIVU
		inst.Valid = true
		inst.IsDiv = true
	case 0b110: // REM
		inst.Valid = true
		inst.IsDiv = true
		inst.DivSigned = true
		inst.DivRem = true
	case 0b111: // REMU
		inst.Valid = true
		inst.IsDiv = true
		inst.DivRem = true
	}
}

// NOP returns the canonical invalid/bubble instruction: rd=0, mem_op=NONE,
// branch=NONE (spec §4.6, §8 universal invariant on bubbles).
func NOP() *Instruction {
	return &Instruction{}
}
