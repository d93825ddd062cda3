package pipeline

import (
	"github.com/sarchlab/rv32pipe/decode"
	"github.com/sarchlab/rv32pipe/memory"
	"github.com/sarchlab/rv32pipe/regfile"
)

// FetchStage reads one instruction word per cycle from the icache
// (spec §4.1: "word-addressed icache/dcache").
type FetchStage struct {
	icache *memory.Memory
}

// NewFetchStage creates a fetch stage backed by the given instruction
// memory.
func NewFetchStage(icache *memory.Memory) *FetchStage {
	return &FetchStage{icache: icache}
}

// Fetch reads the instruction word at pc.
func (s *FetchStage) Fetch(pc uint32) uint32 {
	return s.icache.ReadWord(pc)
}

// DecodeStage decodes the fetched word and reads the register file.
type DecodeStage struct {
	regFile *regfile.RegFile
	decoder *decode.Decoder
}

// NewDecodeStage creates a decode stage over the given register file.
func NewDecodeStage(regFile *regfile.RegFile, decoderOpts ...decode.DecoderOption) *DecodeStage {
	return &DecodeStage{
		regFile: regFile,
		decoder: decode.NewDecoder(decoderOpts...),
	}
}

// DecodeResult bundles the decoded instruction with the register values
// read for it.
type DecodeResult struct {
	Inst     *decode.Instruction
	Rs1Value uint32
	Rs2Value uint32
}

// Decode decodes word and reads its source operands.
func (s *DecodeStage) Decode(word uint32) DecodeResult {
	inst := s.decoder.Decode(word)
	return DecodeResult{
		Inst:     inst,
		Rs1Value: s.regFile.Read(inst.Rs1),
		Rs2Value: s.regFile.Read(inst.Rs2),
	}
}

// ExecuteStage performs ALU computation, address calculation, and
// branch/jump resolution.
type ExecuteStage struct{}

// NewExecuteStage creates an execute stage.
func NewExecuteStage() *ExecuteStage {
	return &ExecuteStage{}
}

// ExecuteResult bundles the execute stage's outputs.
type ExecuteResult struct {
	ALUResult  uint32
	StoreValue uint32

	BranchTaken  bool
	BranchTarget uint32
}

// Execute runs the ALU/branch logic for idex given its (already
// forwarded) operand values.
func (s *ExecuteStage) Execute(idex *IDEXRegister, rs1Val, rs2Val uint32) ExecuteResult {
	result := ExecuteResult{}
	inst := idex.Inst

	op1 := aluOperand(inst.Op1, rs1Val, idex.PC)
	op2 := aluOperand2(inst.Op2, rs2Val, inst.Imm)

	result.ALUResult = applyALU(inst.AluOp, op1, op2)
	result.StoreValue = rs2Val

	if inst.Branch != decode.BranchNone {
		result.BranchTaken, result.BranchTarget = resolveBranch(inst, idex.PC, rs1Val, rs2Val)
		if inst.Branch == decode.BranchJAL || inst.Branch == decode.BranchJALR {
			result.ALUResult = idex.PC + 4 // link value
		}
	}

	return result
}

func aluOperand(sel decode.Op1Sel, rs1Val, pc uint32) uint32 {
	switch sel {
	case decode.Op1PC:
		return pc
	case decode.Op1Zero:
		return 0
	default:
		return rs1Val
	}
}

func aluOperand2(sel decode.Op2Sel, rs2Val uint32, imm int32) uint32 {
	switch sel {
	case decode.Op2Imm:
		return uint32(imm)
	case decode.Op2Four:
		return 4
	default:
		return rs2Val
	}
}

func applyALU(op decode.AluOp, a, b uint32) uint32 {
	switch op {
	case decode.AluADD:
		return a + b
	case decode.AluSUB:
		return a - b
	case decode.AluSLL:
		return a << (b & 0x1F)
	case decode.AluSLT:
		return boolToWord(int32(a) < int32(b))
	case decode.AluSLTU:
		return boolToWord(a < b)
	case decode.AluXOR:
		return a ^ b
	case decode.AluSRL:
		return a >> (b & 0x1F)
	case decode.AluSRA:
		return uint32(int32(a) >> (b & 0x1F))
	case decode.AluOR:
		return a | b
	case decode.AluAND:
		return a & b
	default: // AluPASS
		return a
	}
}

func boolToWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// resolveBranch evaluates a branch/jump's condition and target (spec
// §4.6): JAL/JALR are always taken; conditional branches compare rs1Val
// and rs2Val per the RV32I comparison defined for their funct3.
func resolveBranch(inst *decode.Instruction, pc uint32, rs1Val, rs2Val uint32) (taken bool, target uint32) {
	switch inst.Branch {
	case decode.BranchJAL:
		return true, uint32(int32(pc) + inst.Imm)
	case decode.BranchJALR:
		return true, (rs1Val + uint32(inst.Imm)) &^ 1
	case decode.BranchBEQ:
		return rs1Val == rs2Val, uint32(int32(pc) + inst.Imm)
	case decode.BranchBNE:
		return rs1Val != rs2Val, uint32(int32(pc) + inst.Imm)
	case decode.BranchBLT:
		return int32(rs1Val) < int32(rs2Val), uint32(int32(pc) + inst.Imm)
	case decode.BranchBGE:
		return int32(rs1Val) >= int32(rs2Val), uint32(int32(pc) + inst.Imm)
	case decode.BranchBLTU:
		return rs1Val < rs2Val, uint32(int32(pc) + inst.Imm)
	case decode.BranchBGEU:
		return rs1Val >= rs2Val, uint32(int32(pc) + inst.Imm)
	default:
		return false, 0
	}
}

// MemoryStage performs the MEM-stage dcache access.
type MemoryStage struct {
	dcache *memory.Memory
}

// NewMemoryStage creates a memory stage backed by the given data
// memory.
func NewMemoryStage(dcache *memory.Memory) *MemoryStage {
	return &MemoryStage{dcache: dcache}
}

// MemoryResult holds the loaded value, if any.
type MemoryResult struct {
	MemData uint32
}

// Access performs the load/store described by exmem.
func (s *MemoryStage) Access(exmem *EXMEMRegister) MemoryResult {
	result := MemoryResult{}
	if !exmem.Valid {
		return result
	}

	inst := exmem.Inst
	switch inst.MemOp {
	case decode.MemLoad:
		result.MemData = s.dcache.LoadAligned(exmem.ALUResult, toMemoryWidth(inst.MemWidth), inst.MemSigned)
	case decode.MemStore:
		s.dcache.StoreAligned(exmem.ALUResult, toMemoryWidth(inst.MemWidth), exmem.StoreValue)
	}

	return result
}

func toMemoryWidth(w decode.MemWidth) memory.Width {
	switch w {
	case decode.WidthHalf:
		return memory.Half
	case decode.WidthWord:
		return memory.Word
	default:
		return memory.Byte
	}
}

// WritebackStage commits a retiring instruction's result to the
// register file.
type WritebackStage struct {
	regFile *regfile.RegFile
}

// NewWritebackStage creates a writeback stage over the given register
// file.
func NewWritebackStage(regFile *regfile.RegFile) *WritebackStage {
	return &WritebackStage{regFile: regFile}
}

// Writeback commits memwb's result, if it writes a register.
func (s *WritebackStage) Writeback(memwb *MEMWBRegister) {
	if !memwb.Valid || !memwb.Inst.RegWrite {
		return
	}
	s.regFile.Write(memwb.Inst.Rd, memwb.WritebackValue())
}
