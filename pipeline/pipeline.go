package pipeline

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/sarchlab/rv32pipe/btb"
	"github.com/sarchlab/rv32pipe/decode"
	"github.com/sarchlab/rv32pipe/div"
	"github.com/sarchlab/rv32pipe/memory"
	"github.com/sarchlab/rv32pipe/mul"
	"github.com/sarchlab/rv32pipe/regfile"
)

// Tracer receives a line of cycle-tagged diagnostic output for each
// pipeline event worth recording (spec §6: trace format). Implementations
// live in the trace package; Pipeline never formats trace text itself.
type Tracer interface {
	Trace(cycle uint64, stage, message string)
}

// execKind distinguishes which multi-cycle unit currently occupies EX.
type execKind uint8

const (
	execNone execKind = iota
	execMul
	execDiv
)

// pendingExec tracks a multi-cycle (MUL/DIV) operation that has been
// started in EX but has not yet produced a settled result; it holds EX
// (and everything behind it) busy across multiple Pipeline.Tick calls
// (spec §4.3/§4.4: "structural stalls from busy multiplier/divider").
type pendingExec struct {
	kind execKind
}

// PipelineOption configures a Pipeline at construction time.
type PipelineOption func(*Pipeline)

// WithTracer attaches a Tracer that receives one call per traced event.
func WithTracer(t Tracer) PipelineOption {
	return func(p *Pipeline) { p.tracer = t }
}

// WithBTBEntries overrides the BTB entry count (spec §4.5 default: 64).
func WithBTBEntries(n int) PipelineOption {
	return func(p *Pipeline) { p.btbEntries = n }
}

// WithPredictorConfig overrides the tournament predictor table sizes.
func WithPredictorConfig(cfg btb.PredictorConfig) PipelineOption {
	return func(p *Pipeline) { p.predictorCfg = cfg }
}

// WithLogger attaches a logr.Logger that receives decode-miss warnings
// (spec §7); it is passed through to the decode stage's Decoder.
func WithLogger(l logr.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// Pipeline is the classic 5-stage in-order RV32IM pipeline (spec §4.6).
type Pipeline struct {
	fetchStage     *FetchStage
	decodeStage    *DecodeStage
	executeStage   *ExecuteStage
	memoryStage    *MemoryStage
	writebackStage *WritebackStage
	hazardUnit     *HazardUnit

	mulUnit    *mul.Multiplier
	divUnit    *div.Divider
	branchUnit *btb.Unit

	btbEntries   int
	predictorCfg btb.PredictorConfig

	regFile *regfile.RegFile
	icache  *memory.Memory
	dcache  *memory.Memory
	pc      uint32

	ifid      IFIDRegister
	nextIfid  IFIDRegister
	idexReg   IDEXRegister
	nextIdex  IDEXRegister
	exmemReg  EXMEMRegister
	nextExmem EXMEMRegister
	memwbReg  MEMWBRegister
	nextMemwb MEMWBRegister
	pending   pendingExec

	tracer Tracer
	logger logr.Logger

	cycleCount       uint64
	instructionCount uint64
	stallCount       uint64
	branchCount      uint64
	mispredictCount  uint64
	flushCount       uint64

	halted   bool
	exitCode int32
}

// NewPipeline creates a 5-stage RV32IM pipeline over the given register
// file, instruction memory, and data memory.
func NewPipeline(regFile *regfile.RegFile, icache, dcache *memory.Memory, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		fetchStage:     NewFetchStage(icache),
		executeStage:   NewExecuteStage(),
		memoryStage:    NewMemoryStage(dcache),
		writebackStage: NewWritebackStage(regFile),
		hazardUnit:     NewHazardUnit(),
		mulUnit:        mul.New(),
		divUnit:        div.New(),
		regFile:        regFile,
		icache:         icache,
		dcache:         dcache,
		btbEntries:     btb.DefaultEntries,
		predictorCfg:   btb.DefaultPredictorConfig(),
		logger:         logr.Discard(),
	}

	for _, opt := range opts {
		opt(p)
	}

	p.decodeStage = NewDecodeStage(regFile, decode.WithLogger(p.logger))
	p.branchUnit = btb.NewUnit(p.btbEntries, p.predictorCfg)

	return p
}

// SetPC sets the program counter (simulator entry point).
func (p *Pipeline) SetPC(pc uint32) { p.pc = pc }

// PC returns the current program counter.
func (p *Pipeline) PC() uint32 { return p.pc }

// Halted reports whether EBREAK has stopped the pipeline.
func (p *Pipeline) Halted() bool { return p.halted }

// ExitCode returns x10 (a0) at the point the pipeline halted.
func (p *Pipeline) ExitCode() int32 { return p.exitCode }

// Stats holds pipeline performance counters.
type Stats struct {
	Cycles       uint64
	Instructions uint64
	Stalls       uint64
	Branches     uint64
	Mispredicts  uint64
	Flushes      uint64
	CPI          float64
	BTBHitRate   float64
}

// Stats returns the pipeline's accumulated performance counters.
func (p *Pipeline) Stats() Stats {
	s := Stats{
		Cycles:       p.cycleCount,
		Instructions: p.instructionCount,
		Stalls:       p.stallCount,
		Branches:     p.branchCount,
		Mispredicts:  p.mispredictCount,
		Flushes:      p.flushCount,
		BTBHitRate:   p.branchUnit.BTBStats().HitRate(),
	}
	if s.Instructions > 0 {
		s.CPI = float64(s.Cycles) / float64(s.Instructions)
	}
	return s
}

func (p *Pipeline) trace(stage, format string, args ...any) {
	if p.tracer == nil {
		return
	}
	p.tracer.Trace(p.cycleCount, stage, fmt.Sprintf(format, args...))
}

// Tick advances the pipeline by exactly one clock cycle.
func (p *Pipeline) Tick() {
	if p.halted {
		return
	}

	p.cycleCount++

	p.doWriteback()
	p.doMemory()
	// Fetch's branchUnit.Predict call must observe the predictor/BTB
	// state as it stood before this cycle's EX stage resolves a branch
	// (spec §9: predict uses the pre-update state; update happens at
	// the cycle edge). Running doFetch before doExecute's
	// branchUnit.Resolve call is what gives same-PC predict/update
	// collisions — a tight loop whose refetch lands back on the same
	// branch EX is resolving this cycle — the required pre-update read.
	p.doFetch()
	mispredict, actualNextPC, structuralStall := p.doExecute()
	loadUseHazard := p.doDecode()

	switch {
	case structuralStall:
		p.stallCount++
		// EX is occupied by a multi-cycle op: hold IF/ID and ID/EX,
		// and keep feeding a bubble downstream.
		p.nextIfid = p.ifid
		p.nextIdex = p.idexReg
		p.nextExmem.Clear()

	case loadUseHazard:
		p.stallCount++
		p.nextIfid = p.ifid
		p.nextIdex.Clear()

	case mispredict:
		p.mispredictCount++
		p.flushCount++
		p.nextIfid.Clear()
		p.nextIdex.Clear()
		p.pc = actualNextPC
	}

	p.ifid = p.nextIfid
	p.idexReg = p.nextIdex
	p.exmemReg = p.nextExmem
	p.memwbReg = p.nextMemwb

	if !structuralStall && !loadUseHazard && !mispredict {
		p.pc = p.ifid.PredictedPC
	}
}

// doFetch reads the instruction at the current PC and predicts the next
// fetch PC via the combined BTB + tournament predictor (spec §4.5).
func (p *Pipeline) doFetch() {
	word := p.fetchStage.Fetch(p.pc)
	predictedPC, _ := p.branchUnit.Predict(p.pc)

	p.nextIfid.Valid = true
	p.nextIfid.PC = p.pc
	p.nextIfid.InstructionWord = word
	p.nextIfid.PredictedPC = predictedPC

	p.trace("IF", "fetch PC=0x%08X word=0x%08X", p.pc, word)
}

// doDecode decodes the instruction in IF/ID and reads its operands.
// Returns true on a load-use hazard that must stall the pipeline.
func (p *Pipeline) doDecode() bool {
	if !p.ifid.Valid {
		p.nextIdex.Clear()
		return false
	}

	result := p.decodeStage.Decode(p.ifid.InstructionWord)

	if p.hazardUnit.DetectLoadUseHazard(&p.idexReg, result.Inst) {
		return true
	}

	p.nextIdex.Valid = true
	p.nextIdex.PC = p.ifid.PC
	p.nextIdex.Inst = result.Inst
	p.nextIdex.Rs1Value = result.Rs1Value
	p.nextIdex.Rs2Value = result.Rs2Value
	p.nextIdex.PredictedPC = p.ifid.PredictedPC

	return false
}

// doExecute runs the EX stage: ALU/branch resolution for ordinary
// instructions, or Start/Tick sequencing against the multiplier/divider
// for RV32M instructions. Returns whether EX resolved a branch
// misprediction, the PC to resume fetching from if so, and whether EX
// is structurally stalled on a multi-cycle op.
func (p *Pipeline) doExecute() (mispredict bool, actualNextPC uint32, structuralStall bool) {
	if !p.idexReg.Valid {
		p.nextExmem.Clear()
		p.pending = pendingExec{}
		return false, 0, false
	}

	inst := p.idexReg.Inst

	if inst.IsEbreak {
		// Retire the instruction that left MEM this cycle (the one in WB
		// already committed above), so every instruction older than
		// EBREAK has written back before the halt.
		p.memwbReg = p.nextMemwb
		p.doWriteback()
		p.nextMemwb.Clear()
		p.halted = true
		p.exitCode = int32(p.regFile.Read(10)) // a0/x10
		p.nextExmem.Clear()
		p.trace("EX", "EBREAK at PC=0x%08X", p.idexReg.PC)
		return false, 0, false
	}

	forwarding := p.hazardUnit.DetectForwarding(&p.idexReg, &p.exmemReg, &p.memwbReg)
	rs1 := p.hazardUnit.GetForwardedValue(forwarding.ForwardRs1, p.idexReg.Rs1Value, &p.exmemReg, &p.memwbReg)
	rs2 := p.hazardUnit.GetForwardedValue(forwarding.ForwardRs2, p.idexReg.Rs2Value, &p.exmemReg, &p.memwbReg)

	if inst.IsMul {
		return false, 0, p.stepMultiplier(inst, rs1, rs2)
	}
	if inst.IsDiv {
		return false, 0, p.stepDivider(inst, rs1, rs2)
	}

	exec := p.executeStage.Execute(&p.idexReg, rs1, rs2)

	p.nextExmem.Valid = true
	p.nextExmem.PC = p.idexReg.PC
	p.nextExmem.Inst = inst
	p.nextExmem.ALUResult = exec.ALUResult
	p.nextExmem.StoreValue = exec.StoreValue

	if inst.Branch == decode.BranchNone {
		return false, 0, false
	}

	p.branchUnit.Resolve(p.idexReg.PC, exec.BranchTaken, exec.BranchTarget)
	p.branchCount++

	actual := p.idexReg.PC + 4
	if exec.BranchTaken {
		actual = exec.BranchTarget
	}

	p.trace("EX", "branch PC=0x%08X taken=%t target=0x%08X", p.idexReg.PC, exec.BranchTaken, actual)

	return actual != p.idexReg.PredictedPC, actual, false
}

// stepMultiplier starts or advances a MUL family instruction occupying
// EX. It returns true while the instruction should keep stalling EX.
func (p *Pipeline) stepMultiplier(inst *decode.Instruction, rs1, rs2 uint32) bool {
	if p.pending.kind != execMul {
		p.mulUnit.Start(rs1, rs2, inst.MulSigned1, inst.MulSigned2, inst.MulHigh, inst.Rd)
		p.pending = pendingExec{kind: execMul}
		p.nextExmem.Clear()
		return true
	}

	result, ready := p.mulUnit.Tick()
	if !ready {
		p.nextExmem.Clear()
		return true
	}

	p.pending = pendingExec{}
	p.nextExmem.Valid = true
	p.nextExmem.PC = p.idexReg.PC
	p.nextExmem.Inst = inst
	p.nextExmem.ALUResult = result.Value
	return false
}

// stepDivider starts or advances a DIV family instruction occupying EX.
func (p *Pipeline) stepDivider(inst *decode.Instruction, rs1, rs2 uint32) bool {
	if p.pending.kind != execDiv {
		p.divUnit.Start(rs1, rs2, inst.DivSigned, inst.DivRem, inst.Rd)
		p.pending = pendingExec{kind: execDiv}
		p.nextExmem.Clear()
		return true
	}

	result, ready := p.divUnit.Tick()
	if !ready {
		p.nextExmem.Clear()
		return true
	}

	p.pending = pendingExec{}
	p.nextExmem.Valid = true
	p.nextExmem.PC = p.idexReg.PC
	p.nextExmem.Inst = inst
	p.nextExmem.ALUResult = result.Value
	return false
}

// doMemory performs the MEM-stage dcache access.
func (p *Pipeline) doMemory() {
	if !p.exmemReg.Valid {
		p.nextMemwb.Clear()
		return
	}

	result := p.memoryStage.Access(&p.exmemReg)

	p.nextMemwb.Valid = true
	p.nextMemwb.PC = p.exmemReg.PC
	p.nextMemwb.Inst = p.exmemReg.Inst
	p.nextMemwb.ALUResult = p.exmemReg.ALUResult
	p.nextMemwb.MemData = result.MemData
}

// doWriteback commits a retiring instruction's result to the register
// file. This runs before doDecode within the same Tick, so ID always
// reads operand values that already reflect this cycle's writeback.
func (p *Pipeline) doWriteback() {
	if !p.memwbReg.Valid {
		return
	}

	p.writebackStage.Writeback(&p.memwbReg)
	p.instructionCount++

	if p.memwbReg.Inst.RegWrite {
		p.trace("WB", "Write x%d <= 0x%08X", p.memwbReg.Inst.Rd, p.memwbReg.WritebackValue())
	}
}

// Run executes the pipeline until EBREAK halts it.
func (p *Pipeline) Run() int32 {
	for !p.halted {
		p.Tick()
	}
	return p.exitCode
}

// RunCycles executes up to n cycles, stopping early on halt. Returns
// false if the pipeline halted.
func (p *Pipeline) RunCycles(n uint64) bool {
	for i := uint64(0); i < n && !p.halted; i++ {
		p.Tick()
	}
	return !p.halted
}

// GetIFID returns a copy of the current IF/ID register for inspection.
func (p *Pipeline) GetIFID() IFIDRegister { return p.ifid }

// GetIDEX returns a copy of the current ID/EX register for inspection.
func (p *Pipeline) GetIDEX() IDEXRegister { return p.idexReg }

// GetEXMEM returns a copy of the current EX/MEM register for inspection.
func (p *Pipeline) GetEXMEM() EXMEMRegister { return p.exmemReg }

// GetMEMWB returns a copy of the current MEM/WB register for
// inspection.
func (p *Pipeline) GetMEMWB() MEMWBRegister { return p.memwbReg }
