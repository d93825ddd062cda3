// Package benchmarks provides end-to-end scenario programs that
// exercise the pipeline's testable properties (spec §8): small hand
// assembled RV32IM images built the same way the teacher's
// benchmarks/timing_harness.go builds its calibration programs, via a
// small set of Encode* helpers and BuildProgram.
package benchmarks

// BuildProgram concatenates encoded instruction words into a program
// image, the RV32IM analogue of the teacher's byte-oriented
// BuildProgram (timing_harness.go).
func BuildProgram(instrs ...uint32) []uint32 {
	return instrs
}

func encodeR(funct7, rs2, rs1, funct3, rd, opcode uint32) uint32 {
	return funct7<<25 | rs2<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func encodeI(imm uint32, rs1, funct3, rd, opcode uint32) uint32 {
	return (imm&0xFFF)<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func encodeB(imm uint32, rs2, rs1, funct3, opcode uint32) uint32 {
	b12 := (imm >> 12) & 0x1
	b11 := (imm >> 11) & 0x1
	b10_5 := (imm >> 5) & 0x3F
	b4_1 := (imm >> 1) & 0xF
	return b12<<31 | b10_5<<25 | rs2<<20 | rs1<<15 | funct3<<12 | b4_1<<8 | b11<<7 | opcode
}

// EncodeADDI encodes "addi rd, rs1, imm".
func EncodeADDI(rd, rs1 uint32, imm int32) uint32 {
	return encodeI(uint32(imm), rs1, 0b000, rd, 0b0010011)
}

// EncodeADD encodes "add rd, rs1, rs2".
func EncodeADD(rd, rs1, rs2 uint32) uint32 {
	return encodeR(0, rs2, rs1, 0b000, rd, 0b0110011)
}

// EncodeMUL encodes "mul rd, rs1, rs2".
func EncodeMUL(rd, rs1, rs2 uint32) uint32 {
	return encodeR(0b0000001, rs2, rs1, 0b000, rd, 0b0110011)
}

// EncodeDIV encodes "div rd, rs1, rs2".
func EncodeDIV(rd, rs1, rs2 uint32) uint32 {
	return encodeR(0b0000001, rs2, rs1, 0b100, rd, 0b0110011)
}

// EncodeBEQ encodes "beq rs1, rs2, imm" (imm relative to this branch's PC).
func EncodeBEQ(rs1, rs2 uint32, imm int32) uint32 {
	return encodeB(uint32(imm)&0x1FFF, rs2, rs1, 0b000, 0b1100011)
}

// EncodeBGE encodes "bge rs1, rs2, imm".
func EncodeBGE(rs1, rs2 uint32, imm int32) uint32 {
	return encodeB(uint32(imm)&0x1FFF, rs2, rs1, 0b101, 0b1100011)
}

// EncodeBNE encodes "bne rs1, rs2, imm".
func EncodeBNE(rs1, rs2 uint32, imm int32) uint32 {
	return encodeB(uint32(imm)&0x1FFF, rs2, rs1, 0b001, 0b1100011)
}

// EncodeLUI encodes "lui rd, upperImm", where upperImm is the already
// upper-shifted 32-bit constant (its low 12 bits are ignored).
func EncodeLUI(rd uint32, upperImm uint32) uint32 {
	return (upperImm & 0xFFFFF000) | rd<<7 | 0b0110111
}

// EncodeEBREAK encodes the EBREAK instruction (halts the simulator).
func EncodeEBREAK() uint32 {
	return encodeI(0x001, 0, 0b000, 0, 0b1110011)
}
