package benchmarks_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rv32pipe/benchmarks"
	"github.com/sarchlab/rv32pipe/memory"
	"github.com/sarchlab/rv32pipe/pipeline"
	"github.com/sarchlab/rv32pipe/regfile"
)

func newRunner(program []uint32) (*pipeline.Pipeline, *regfile.RegFile) {
	rf := &regfile.RegFile{}
	icache := memory.New(memory.WithWordBits(12))
	dcache := memory.New(memory.WithWordBits(12))
	icache.LoadProgram(program)

	p := pipeline.NewPipeline(rf, icache, dcache)
	return p, rf
}

var _ = Describe("Benchmarks", func() {
	It("sums 0..100 into x10", func() {
		// x1=i, x2=100, x10=sum
		program := benchmarks.BuildProgram(
			benchmarks.EncodeADDI(1, 0, 0),   // 0:  i = 0
			benchmarks.EncodeADDI(2, 0, 100), // 4:  limit = 100
			benchmarks.EncodeADDI(10, 0, 0),  // 8:  sum = 0
			benchmarks.EncodeADD(10, 10, 1),  // 12: loop: sum += i
			benchmarks.EncodeADDI(1, 1, 1),   // 16: i++
			benchmarks.EncodeBGE(2, 1, -8),   // 20: if limit >= i goto loop
			benchmarks.EncodeEBREAK(),        // 24
		)

		p, rf := newRunner(program)
		p.Run()

		Expect(rf.Read(10)).To(Equal(uint32(0x13BA)))
	})

	It("computes 10! via the pipelined multiplier", func() {
		// x1=i, x2=10, x10=product
		program := benchmarks.BuildProgram(
			benchmarks.EncodeADDI(1, 0, 1),  // 0:  i = 1
			benchmarks.EncodeADDI(2, 0, 10), // 4:  limit = 10
			benchmarks.EncodeADDI(10, 0, 1), // 8:  product = 1
			benchmarks.EncodeMUL(10, 10, 1), // 12: loop: product *= i
			benchmarks.EncodeADDI(1, 1, 1),  // 16: i++
			benchmarks.EncodeBGE(2, 1, -8),  // 20: if limit >= i goto loop
			benchmarks.EncodeEBREAK(),       // 24
		)

		p, rf := newRunner(program)
		p.Run()

		Expect(rf.Read(10)).To(Equal(uint32(0x375F00)))
	})

	It("divides 10! back down to 1 via the divider", func() {
		// x10 = 10! = 0x375F00, x1 = 10 counting down to 0
		program := benchmarks.BuildProgram(
			benchmarks.EncodeLUI(10, 0x376000), // 0:  x10 = 0x376000
			benchmarks.EncodeADDI(10, 10, -256), // 4:  x10 -= 256  => 0x375F00
			benchmarks.EncodeADDI(1, 0, 10),     // 8:  i = 10
			benchmarks.EncodeDIV(10, 10, 1),     // 12: loop: x10 /= i
			benchmarks.EncodeADDI(1, 1, -1),     // 16: i--
			benchmarks.EncodeBNE(1, 0, -8),      // 20: if i != 0 goto loop
			benchmarks.EncodeEBREAK(),           // 24
		)

		p, rf := newRunner(program)
		p.Run()

		Expect(rf.Read(10)).To(Equal(uint32(1)))
	})

	It("defines INT_MIN / -1 as INT_MIN rather than trapping", func() {
		program := benchmarks.BuildProgram(
			benchmarks.EncodeLUI(1, 0x80000000), // 0: x1 = INT_MIN
			benchmarks.EncodeADDI(2, 0, -1),      // 4: x2 = -1
			benchmarks.EncodeDIV(10, 1, 2),       // 8: x10 = x1 / x2
			benchmarks.EncodeEBREAK(),            // 12
		)

		p, rf := newRunner(program)
		p.Run()

		Expect(rf.Read(10)).To(Equal(uint32(0x80000000)))
	})
})
