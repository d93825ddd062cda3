package memory_test

import (
	"strings"

	"github.com/go-logr/logr/funcr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rv32pipe/memory"
)

var _ = Describe("Memory", func() {
	var m *memory.Memory

	BeforeEach(func() {
		m = memory.New(memory.WithWordBits(8)) // 256 words, small for tests
	})

	It("round-trips a full word", func() {
		m.WriteWord(0x40, 0xCAFEBABE)
		Expect(m.ReadWord(0x40)).To(Equal(uint32(0xCAFEBABE)))
	})

	It("round-trips a signed byte store/load", func() {
		m.WriteWord(0x10, 0)
		m.StoreAligned(0x11, memory.Byte, 0xFF) // byte lane 1 = 0xFF
		v := m.LoadAligned(0x11, memory.Byte, true)
		Expect(v).To(Equal(uint32(0xFFFFFFFF))) // sign-extended -1
	})

	It("zero-extends an unsigned halfword load", func() {
		m.WriteWord(0x20, 0x0000FFFF)
		v := m.LoadAligned(0x20, memory.Half, false)
		Expect(v).To(Equal(uint32(0xFFFF)))
	})

	It("sign-extends a signed halfword load from the upper lane", func() {
		m.WriteWord(0x24, 0x80000000)
		v := m.LoadAligned(0x26, memory.Half, true)
		Expect(v).To(Equal(uint32(0xFFFF8000)))
	})

	It("masks a byte store to its lane without disturbing neighbors", func() {
		m.WriteWord(0x30, 0xFFFFFFFF)
		m.StoreAligned(0x30, memory.Byte, 0x00)
		Expect(m.ReadWord(0x30)).To(Equal(uint32(0xFFFFFF00)))
	})

	It("panics with OutOfRangeError on an out-of-bounds access", func() {
		Expect(func() { m.ReadWord(0xFFFFFF00) }).To(PanicWith(BeAssignableToTypeOf(&memory.OutOfRangeError{})))
	})

	It("logs the out-of-range access before panicking", func() {
		var logged strings.Builder
		logger := funcr.New(func(prefix, args string) {
			logged.WriteString(args)
		}, funcr.Options{})

		logged2 := memory.New(memory.WithWordBits(8), memory.WithLogger(logger))
		Expect(func() { logged2.ReadWord(0xFFFFFF00) }).To(Panic())
		Expect(logged.String()).To(ContainSubstring("memory access out of range"))
	})

	It("loads a program image and zero-pads the remainder", func() {
		m.LoadProgram([]uint32{1, 2, 3})
		Expect(m.ReadWord(0)).To(Equal(uint32(1)))
		Expect(m.ReadWord(4)).To(Equal(uint32(2)))
		Expect(m.ReadWord(8)).To(Equal(uint32(3)))
		Expect(m.ReadWord(12)).To(Equal(uint32(0)))
	})
})
