// Package pipeline implements the classic 5-stage in-order RV32IM
// pipeline (spec §4.6): Fetch, Decode, Execute, Memory, Writeback,
// connected by synchronously-updated pipeline registers and guarded by
// a hazard unit that handles forwarding, load-use stalls, and
// structural stalls for the multi-cycle multiplier/divider.
package pipeline

import "github.com/sarchlab/rv32pipe/decode"

// IFIDRegister holds state latched between Fetch and Decode.
type IFIDRegister struct {
	Valid bool

	PC              uint32
	InstructionWord uint32

	// PredictedPC is the PC fetch guessed would follow this instruction
	// (spec §4.5); EX compares it against the resolved target to decide
	// whether to flush.
	PredictedPC uint32
}

// Clear resets the IF/ID register to an empty bubble.
func (r *IFIDRegister) Clear() {
	*r = IFIDRegister{}
}

// IDEXRegister holds state latched between Decode and Execute.
type IDEXRegister struct {
	Valid bool

	PC   uint32
	Inst *decode.Instruction

	Rs1Value uint32
	Rs2Value uint32

	PredictedPC uint32
}

// Clear resets the ID/EX register to an empty bubble.
func (r *IDEXRegister) Clear() {
	*r = IDEXRegister{}
}

// EXMEMRegister holds state latched between Execute and Memory.
type EXMEMRegister struct {
	Valid bool

	PC   uint32
	Inst *decode.Instruction

	ALUResult  uint32
	StoreValue uint32
}

// Clear resets the EX/MEM register to an empty bubble.
func (r *EXMEMRegister) Clear() {
	*r = EXMEMRegister{}
}

// MEMWBRegister holds state latched between Memory and Writeback.
type MEMWBRegister struct {
	Valid bool

	PC   uint32
	Inst *decode.Instruction

	ALUResult uint32
	MemData   uint32
}

// Clear resets the MEM/WB register to an empty bubble.
func (r *MEMWBRegister) Clear() {
	*r = MEMWBRegister{}
}

// WritebackValue returns the value this instruction, once retired,
// writes into the register file.
func (r *MEMWBRegister) WritebackValue() uint32 {
	if r.Inst.MemOp == decode.MemLoad {
		return r.MemData
	}
	return r.ALUResult
}
