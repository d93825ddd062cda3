// Package memory implements the word-addressed instruction/data memories
// used by the pipeline (spec §4.2). Each memory is an array of 2^N 32-bit
// words addressed by byte address; the low two bits select byte/halfword
// lanes within a word for loads and stores narrower than a full word.
package memory

import (
	"fmt"

	"github.com/go-logr/logr"
)

// DefaultWordBits is the default memory size exponent: 2^16 words (256 KiB).
const DefaultWordBits = 16

// Width selects the access width for a load or store.
type Width uint8

// Supported access widths.
const (
	Byte Width = iota
	Half
	Word
)

// OutOfRangeError is returned (and, per spec §7, fatal to the simulation)
// when an access's word index falls outside the configured memory size.
type OutOfRangeError struct {
	Addr     uint32
	WordBits uint
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("memory: address 0x%08X out of range (%d-word memory)",
		e.Addr, uint32(1)<<e.WordBits)
}

// Memory is a word-addressed SRAM model: icache and dcache are each one
// instance of this type. Byte addresses are shifted right by 2 to index
// the underlying word array.
type Memory struct {
	words    []uint32
	wordBits uint
	logger   logr.Logger
}

// Option configures a Memory at construction time.
type Option func(*Memory)

// WithWordBits sets the memory size to 2^bits words.
func WithWordBits(bits uint) Option {
	return func(m *Memory) {
		m.wordBits = bits
	}
}

// WithLogger attaches a logr.Logger that receives the fatal
// out-of-range message (spec §7: "logged and run terminates") before
// the access panics.
func WithLogger(l logr.Logger) Option {
	return func(m *Memory) {
		m.logger = l
	}
}

// New creates a Memory of 2^DefaultWordBits words, or as configured by opts.
func New(opts ...Option) *Memory {
	m := &Memory{wordBits: DefaultWordBits, logger: logr.Discard()}
	for _, opt := range opts {
		opt(m)
	}
	m.words = make([]uint32, 1<<m.wordBits)
	return m
}

// WordBits returns the configured size exponent.
func (m *Memory) WordBits() uint {
	return m.wordBits
}

// SizeBytes returns the memory size in bytes.
func (m *Memory) SizeBytes() uint32 {
	return uint32(len(m.words)) * 4
}

// index converts a byte address to a word index, checking bounds. An
// out-of-range access is fatal (spec §7): it is logged here and the
// error returned so every caller can panic, unwinding to whatever
// top-level recover() turns the crash into a terminated run.
func (m *Memory) index(addr uint32) (int, error) {
	idx := addr >> 2
	if int(idx) >= len(m.words) {
		err := &OutOfRangeError{Addr: addr, WordBits: m.wordBits}
		m.logger.Error(err, "memory access out of range, terminating run",
			"address", fmt.Sprintf("0x%08X", addr))
		return 0, err
	}
	return int(idx), nil
}

// ReadWord reads the full 32-bit word containing addr. Panics with an
// OutOfRangeError on an out-of-bounds access, per spec §4.2/§7.
func (m *Memory) ReadWord(addr uint32) uint32 {
	idx, err := m.index(addr)
	if err != nil {
		panic(err)
	}
	return m.words[idx]
}

// WriteWord writes the full 32-bit word containing addr.
func (m *Memory) WriteWord(addr uint32, v uint32) {
	idx, err := m.index(addr)
	if err != nil {
		panic(err)
	}
	m.words[idx] = v
}

// LoadAligned reads a byte/half/word value from addr, muxed down from the
// containing word per spec §4.2 (halfword uses addr[1], byte uses
// addr[1:0]), and sign- or zero-extends to 32 bits as requested.
func (m *Memory) LoadAligned(addr uint32, width Width, signed bool) uint32 {
	word := m.ReadWord(addr)
	switch width {
	case Byte:
		shift := (addr & 0x3) * 8
		v := uint8(word >> shift)
		if signed {
			return uint32(int32(int8(v)))
		}
		return uint32(v)
	case Half:
		shift := (addr & 0x2) * 8
		v := uint16(word >> shift)
		if signed {
			return uint32(int32(int16(v)))
		}
		return uint32(v)
	default:
		return word
	}
}

// StoreAligned performs a read-modify-write store of the low bits of v
// into the byte/half/word lane selected by addr[1:0], per spec §4.2.
func (m *Memory) StoreAligned(addr uint32, width Width, v uint32) {
	idx, err := m.index(addr)
	if err != nil {
		panic(err)
	}

	var mask, shift uint32
	switch width {
	case Byte:
		mask = 0xFF
		shift = (addr & 0x3) * 8
	case Half:
		mask = 0xFFFF
		shift = (addr & 0x2) * 8
	default:
		m.words[idx] = v
		return
	}

	cur := m.words[idx]
	cur &^= mask << shift
	cur |= (v & mask) << shift
	m.words[idx] = cur
}

// LoadProgram copies a sequence of words starting at word index 0,
// typically used to seed a memory from a parsed .exe/.data image.
func (m *Memory) LoadProgram(words []uint32) {
	n := copy(m.words, words)
	for i := n; i < len(m.words); i++ {
		m.words[i] = 0
	}
}
