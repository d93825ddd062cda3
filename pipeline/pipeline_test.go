package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rv32pipe/memory"
	"github.com/sarchlab/rv32pipe/pipeline"
	"github.com/sarchlab/rv32pipe/regfile"
)

func encodeR(funct7, rs2, rs1, funct3, rd, opcode uint32) uint32 {
	return funct7<<25 | rs2<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func encodeI(imm uint32, rs1, funct3, rd, opcode uint32) uint32 {
	return (imm&0xFFF)<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func encodeS(imm uint32, rs2, rs1, funct3, opcode uint32) uint32 {
	lo := imm & 0x1F
	hi := (imm >> 5) & 0x7F
	return hi<<25 | rs2<<20 | rs1<<15 | funct3<<12 | lo<<7 | opcode
}

func encodeB(imm uint32, rs2, rs1, funct3, opcode uint32) uint32 {
	b12 := (imm >> 12) & 0x1
	b11 := (imm >> 11) & 0x1
	b10_5 := (imm >> 5) & 0x3F
	b4_1 := (imm >> 1) & 0xF
	return b12<<31 | b10_5<<25 | rs2<<20 | rs1<<15 | funct3<<12 | b4_1<<8 | b11<<7 | opcode
}

func addi(rd, rs1 uint32, imm int32) uint32 {
	return encodeI(uint32(imm), rs1, 0b000, rd, 0b0010011)
}

func add(rd, rs1, rs2 uint32) uint32 {
	return encodeR(0, rs2, rs1, 0b000, rd, 0b0110011)
}

func mulInst(rd, rs1, rs2 uint32) uint32 {
	return encodeR(0b0000001, rs2, rs1, 0b000, rd, 0b0110011)
}

func divInst(rd, rs1, rs2 uint32) uint32 {
	return encodeR(0b0000001, rs2, rs1, 0b100, rd, 0b0110011)
}

func lw(rd, rs1 uint32, imm int32) uint32 {
	return encodeI(uint32(imm), rs1, 0b010, rd, 0b0000011)
}

func sw(rs2, rs1 uint32, imm int32) uint32 {
	return encodeS(uint32(imm), rs2, rs1, 0b010, 0b0100011)
}

func beq(rs1, rs2 uint32, imm int32) uint32 {
	return encodeB(uint32(imm)&0x1FFF, rs2, rs1, 0b000, 0b1100011)
}

func bne(rs1, rs2 uint32, imm int32) uint32 {
	return encodeB(uint32(imm)&0x1FFF, rs2, rs1, 0b001, 0b1100011)
}

func ebreak() uint32 {
	return encodeI(0x001, 0, 0b000, 0, 0b1110011)
}

func newTestPipeline(program []uint32) (*pipeline.Pipeline, *regfile.RegFile) {
	rf := &regfile.RegFile{}
	icache := memory.New(memory.WithWordBits(10))
	dcache := memory.New(memory.WithWordBits(10))
	icache.LoadProgram(program)
	p := pipeline.NewPipeline(rf, icache, dcache)
	return p, rf
}

// orderingSpy records the stage of every traced event in call order, so
// a test can check that within a given cycle IF ran before EX.
type orderingSpy struct {
	cycles []uint64
	stages []string
}

func (s *orderingSpy) Trace(cycle uint64, stage, message string) {
	s.cycles = append(s.cycles, cycle)
	s.stages = append(s.stages, stage)
}

// ifBeforeEXEveryCycle reports whether, for every cycle that traced both
// an IF and an EX event, the IF event was recorded first.
func (s *orderingSpy) ifBeforeEXEveryCycle() bool {
	ifIndex := map[uint64]int{}
	exIndex := map[uint64]int{}
	for i, c := range s.cycles {
		switch s.stages[i] {
		case "IF":
			if _, ok := ifIndex[c]; !ok {
				ifIndex[c] = i
			}
		case "EX":
			if _, ok := exIndex[c]; !ok {
				exIndex[c] = i
			}
		}
	}
	for c, exI := range exIndex {
		ifI, ok := ifIndex[c]
		if ok && ifI > exI {
			return false
		}
	}
	return true
}

var _ = Describe("Pipeline", func() {
	It("executes a straight-line ADDI sequence", func() {
		p, rf := newTestPipeline([]uint32{
			addi(1, 0, 5),
			addi(2, 0, 7),
			add(3, 1, 2),
			ebreak(),
		})
		p.Run()
		Expect(rf.Read(3)).To(Equal(uint32(12)))
	})

	It("forwards an EX/MEM result to the very next instruction", func() {
		p, rf := newTestPipeline([]uint32{
			addi(1, 0, 10),
			add(2, 1, 1), // depends on x1 one cycle after it's produced
			ebreak(),
		})
		p.Run()
		Expect(rf.Read(2)).To(Equal(uint32(20)))
	})

	It("stalls on a load-use hazard before forwarding the loaded value", func() {
		p, rf := newTestPipeline([]uint32{
			addi(1, 0, 0x10),   // x1 = address
			sw(2, 0, 0),        // irrelevant store to prime dcache (rs2=x2=0)
			addi(3, 0, 99),     // x3 = 99, written to [x1]
			sw(3, 1, 0),        // store x3 to [x1]
			lw(4, 1, 0),        // x4 = mem[x1]
			add(5, 4, 4),       // immediately uses the loaded value
			ebreak(),
		})
		p.Run()
		Expect(rf.Read(4)).To(Equal(uint32(99)))
		Expect(rf.Read(5)).To(Equal(uint32(198)))
		Expect(p.Stats().Stalls).To(BeNumerically(">=", 1))
	})

	It("flushes on a taken branch and does not execute the skipped instruction", func() {
		p, rf := newTestPipeline([]uint32{
			addi(1, 0, 1),
			addi(2, 0, 1),
			beq(1, 2, 8), // taken: skip the next instruction
			addi(3, 0, 0xBAD),
			addi(3, 0, 0x600D),
			ebreak(),
		})
		p.Run()
		Expect(rf.Read(3)).To(Equal(uint32(0x600D)))
		Expect(p.Stats().Branches).To(Equal(uint64(1)))
	})

	It("does not flush a not-taken branch", func() {
		p, rf := newTestPipeline([]uint32{
			addi(1, 0, 1),
			addi(2, 0, 2),
			beq(1, 2, 8), // not taken
			addi(3, 0, 77),
			ebreak(),
		})
		p.Run()
		Expect(rf.Read(3)).To(Equal(uint32(77)))
	})

	It("computes MUL through the multi-cycle multiplier", func() {
		p, rf := newTestPipeline([]uint32{
			addi(1, 0, 6),
			addi(2, 0, 7),
			mulInst(3, 1, 2),
			ebreak(),
		})
		p.Run()
		Expect(rf.Read(3)).To(Equal(uint32(42)))
	})

	It("computes DIV through the multi-cycle divider", func() {
		p, rf := newTestPipeline([]uint32{
			addi(1, 0, 20),
			addi(2, 0, 4),
			divInst(3, 1, 2),
			ebreak(),
		})
		p.Run()
		Expect(rf.Read(3)).To(Equal(uint32(5)))
	})

	It("halts on EBREAK and records x10 as the exit code", func() {
		p, rf := newTestPipeline([]uint32{
			addi(10, 0, 3),
			ebreak(),
		})
		p.Run()
		Expect(p.Halted()).To(BeTrue())
		Expect(rf.Read(10)).To(Equal(uint32(3)))
		Expect(p.ExitCode()).To(Equal(int32(3)))
	})

	It("learns a taken branch's target in the BTB across a loop", func() {
		// A small decrementing loop: x1 counts down from 3 to 0.
		p, rf := newTestPipeline([]uint32{
			addi(1, 0, 3),   // 0:  x1 = 3
			addi(1, 1, -1),  // 4:  x1-- (loop target)
			beq(1, 0, 12),   // 8:  if x1==0 goto 20 (exit)
			addi(2, 2, 1),   // 12: x2++
			beq(0, 0, -12),  // 16: goto 4 (unconditional, rs1=rs2=x0)
			ebreak(),        // 20
		})
		p.Run()
		Expect(rf.Read(2)).To(Equal(uint32(2)))
		Expect(p.Stats().Branches).To(BeNumerically(">", 0))
	})

	It("predicts a same-cycle refetch of a branch using the pre-update BTB/predictor state", func() {
		// A 2-instruction loop body is exactly as long as the IF-to-EX
		// pipeline distance, so once the loop is warm IF refetches the
		// branch's own address in the very same Tick that EX resolves
		// the previous iteration of that branch: doFetch's Predict(pc)
		// call and doExecute's Resolve(pc, ...) call target the same pc
		// within one Tick. Predict must still see pre-update state.
		spy := &orderingSpy{}
		program := []uint32{
			addi(1, 0, 5),  // 0:  x1 = 5
			addi(1, 1, -1), // 4:  loop: x1--
			bne(1, 0, -4),  // 8:  goto 4 if x1 != 0
			ebreak(),       // 12
		}

		rf := &regfile.RegFile{}
		icache := memory.New(memory.WithWordBits(10))
		dcache := memory.New(memory.WithWordBits(10))
		icache.LoadProgram(program)
		p := pipeline.NewPipeline(rf, icache, dcache, pipeline.WithTracer(spy))

		p.Run()

		Expect(rf.Read(1)).To(Equal(uint32(0)))
		Expect(p.Stats().Branches).To(BeNumerically(">=", 2))
		Expect(spy.ifBeforeEXEveryCycle()).To(BeTrue())
	})
})
