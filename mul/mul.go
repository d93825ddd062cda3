// Package mul implements the 3-stage pipelined 32x32->64 multiplier
// (spec §4.3). A start() call is only legal while the unit is not busy;
// the result becomes readable exactly 3 cycles after start, and busy()
// is true starting the very cycle start() is called (spec §9, "same-cycle
// busy").
package mul

// Result is the settled result of a completed multiply, available the
// cycle after the third pipeline stage advances.
type Result struct {
	Rd    uint8
	Value uint32
}

// generation is one in-flight multiply occupying a pipeline slot.
type generation struct {
	valid      bool
	rd         uint8
	wantHigh   bool
	op1Signed  bool
	op2Signed  bool
	op1, op2   uint32
	product    uint64 // computed at start(), carried through the 3 stages
}

// Multiplier is the 3-stage pipelined multiplier. Stage M1 holds the
// instruction that most recently called start(); each Tick advances every
// valid stage one slot toward M3, from which a settled Result is read.
type Multiplier struct {
	m1, m2, m3 generation
}

// New creates an idle multiplier.
func New() *Multiplier {
	return &Multiplier{}
}

// Busy reports whether any of M1/M2/M3 holds a valid in-flight multiply.
func (m *Multiplier) Busy() bool {
	return m.m1.valid || m.m2.valid || m.m3.valid
}

// Start begins a new multiply. Calling Start while Busy is a structural
// misuse (spec §7.4): the caller (the pipeline's EX stage / hazard unit)
// must never issue a second multiply before the first retires.
func (m *Multiplier) Start(op1, op2 uint32, op1Signed, op2Signed, wantHigh bool, rd uint8) {
	if m.Busy() {
		panic("mul: start() called while multiplier busy")
	}

	var p1, p2 uint64
	if op1Signed {
		p1 = uint64(int64(int32(op1)))
	} else {
		p1 = uint64(op1)
	}
	if op2Signed {
		p2 = uint64(int64(int32(op2)))
	} else {
		p2 = uint64(op2)
	}

	m.m1 = generation{
		valid:     true,
		rd:        rd,
		wantHigh:  wantHigh,
		op1Signed: op1Signed,
		op2Signed: op2Signed,
		op1:       op1,
		op2:       op2,
		product:   p1 * p2,
	}
}

// Tick advances the pipeline by one cycle, shifting M1->M2->M3. It returns
// the settled result if the instruction that was in M3 this cycle
// retires, i.e. the multiply started exactly 3 ticks ago.
func (m *Multiplier) Tick() (Result, bool) {
	var result Result
	var ready bool

	if m.m3.valid {
		result = Result{Rd: m.m3.rd, Value: extract(m.m3)}
		ready = true
	}

	m.m3 = m.m2
	m.m2 = m.m1
	m.m1 = generation{}

	return result, ready
}

func extract(g generation) uint32 {
	if g.wantHigh {
		return uint32(g.product >> 32)
	}
	return uint32(g.product)
}

// Reset clears all in-flight state.
func (m *Multiplier) Reset() {
	m.m1, m.m2, m.m3 = generation{}, generation{}, generation{}
}
