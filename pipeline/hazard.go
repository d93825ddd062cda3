package pipeline

import "github.com/sarchlab/rv32pipe/decode"

// HazardUnit detects data hazards and drives forwarding, load-use
// stalls, and structural stalls (spec §4.6: "Hazard/forwarding/stall
// unit").
type HazardUnit struct{}

// NewHazardUnit creates a new hazard detection unit.
func NewHazardUnit() *HazardUnit {
	return &HazardUnit{}
}

// ForwardingSource names where an EX-stage operand's value comes from.
type ForwardingSource uint8

// Forwarding priority (spec §4.6): the EX/MEM bypass is the most
// recently produced result and always wins; MEM/WB is checked next;
// anything else reads the register-file value decode already latched
// into Rs1Value/Rs2Value. Writeback commits to the register file before
// Decode reads it within the same Pipeline.Tick call (see pipeline.go),
// so a same-cycle WB-to-ID bypass falls out of stage ordering rather
// than needing a third explicit mux input.
const (
	ForwardNone ForwardingSource = iota
	ForwardFromEXMEM
	ForwardFromMEMWB
)

// ForwardingResult carries the forwarding decision for both EX operands.
type ForwardingResult struct {
	ForwardRs1 ForwardingSource
	ForwardRs2 ForwardingSource
}

// DetectForwarding computes forwarding decisions for the instruction
// currently in ID/EX, given the contents of EX/MEM and MEM/WB.
func (h *HazardUnit) DetectForwarding(idex *IDEXRegister, exmem *EXMEMRegister, memwb *MEMWBRegister) ForwardingResult {
	result := ForwardingResult{}

	if !idex.Valid {
		return result
	}
	inst := idex.Inst

	if inst.UsesRs1 && inst.Rs1 != 0 {
		result.ForwardRs1 = h.source(inst.Rs1, exmem, memwb)
	}
	if inst.UsesRs2 && inst.Rs2 != 0 {
		result.ForwardRs2 = h.source(inst.Rs2, exmem, memwb)
	}

	return result
}

func (h *HazardUnit) source(reg uint8, exmem *EXMEMRegister, memwb *MEMWBRegister) ForwardingSource {
	if exmem.Valid && exmem.Inst.RegWrite && exmem.Inst.Rd == reg && exmem.Inst.Rd != 0 {
		return ForwardFromEXMEM
	}
	if memwb.Valid && memwb.Inst.RegWrite && memwb.Inst.Rd == reg && memwb.Inst.Rd != 0 {
		return ForwardFromMEMWB
	}
	return ForwardNone
}

// GetForwardedValue resolves a ForwardingSource to the actual operand
// value to use in EX.
func (h *HazardUnit) GetForwardedValue(source ForwardingSource, original uint32, exmem *EXMEMRegister, memwb *MEMWBRegister) uint32 {
	switch source {
	case ForwardFromEXMEM:
		return exmem.ALUResult
	case ForwardFromMEMWB:
		return memwb.WritebackValue()
	default:
		return original
	}
}

// DetectLoadUseHazard reports whether the instruction now in ID/EX is a
// load whose destination the instruction arriving from IF/ID (already
// decoded) needs — forwarding can't fix this because the loaded value
// isn't available until MEM, one cycle after EX would need it.
func (h *HazardUnit) DetectLoadUseHazard(idex *IDEXRegister, nextInst *decode.Instruction) bool {
	if !idex.Valid || idex.Inst.MemOp != decode.MemLoad {
		return false
	}
	rd := idex.Inst.Rd
	if rd == 0 {
		return false
	}
	if nextInst.UsesRs1 && nextInst.Rs1 == rd {
		return true
	}
	if nextInst.UsesRs2 && nextInst.Rs2 == rd {
		return true
	}
	return false
}
