package btb

// saturating2Bit states, shared by the bimodal counters, the gshare
// counters, and the selector (spec §4.5).
const (
	strongNotTaken uint8 = 0
	weakNotTaken   uint8 = 1
	weakTaken      uint8 = 2
	strongTaken    uint8 = 3
)

func bump(counter uint8, taken bool) uint8 {
	if taken {
		if counter < strongTaken {
			return counter + 1
		}
		return counter
	}
	if counter > strongNotTaken {
		return counter - 1
	}
	return counter
}

// PredictorConfig sizes the bimodal/gshare/selector tables. All sizes
// must be powers of two.
type PredictorConfig struct {
	BimodalEntries  int
	GshareEntries   int
	SelectorEntries int
}

// DefaultPredictorConfig returns the default table sizes.
func DefaultPredictorConfig() PredictorConfig {
	return PredictorConfig{
		BimodalEntries:  1024,
		GshareEntries:   1024,
		SelectorEntries: 1024,
	}
}

// TournamentPredictor combines a bimodal and a gshare 2-bit-counter
// direction predictor with a selector that learns, per PC, which of the
// two to trust (spec §4.5).
type TournamentPredictor struct {
	bimodal  []uint8
	gshare   []uint8
	selector []uint8

	bimodalMask  uint32
	gshareMask   uint32
	selectorMask uint32

	globalHistory uint32
}

// NewTournamentPredictor creates a predictor with the given table sizes.
func NewTournamentPredictor(cfg PredictorConfig) *TournamentPredictor {
	if cfg.BimodalEntries <= 0 {
		cfg.BimodalEntries = DefaultPredictorConfig().BimodalEntries
	}
	if cfg.GshareEntries <= 0 {
		cfg.GshareEntries = DefaultPredictorConfig().GshareEntries
	}
	if cfg.SelectorEntries <= 0 {
		cfg.SelectorEntries = DefaultPredictorConfig().SelectorEntries
	}

	tp := &TournamentPredictor{
		bimodal:      make([]uint8, cfg.BimodalEntries),
		gshare:       make([]uint8, cfg.GshareEntries),
		selector:     make([]uint8, cfg.SelectorEntries),
		bimodalMask:  uint32(cfg.BimodalEntries - 1),
		gshareMask:   uint32(cfg.GshareEntries - 1),
		selectorMask: uint32(cfg.SelectorEntries - 1),
	}

	for i := range tp.bimodal {
		tp.bimodal[i] = weakTaken
	}
	for i := range tp.gshare {
		tp.gshare[i] = weakTaken
	}
	for i := range tp.selector {
		tp.selector[i] = weakTaken // >=2 favors gshare, <2 favors bimodal
	}

	return tp
}

func (tp *TournamentPredictor) bimodalIndex(pc uint32) uint32 {
	return (pc >> 2) & tp.bimodalMask
}

func (tp *TournamentPredictor) gshareIndex(pc uint32) uint32 {
	return ((pc >> 2) ^ tp.globalHistory) & tp.gshareMask
}

func (tp *TournamentPredictor) selectorIndex(pc uint32) uint32 {
	return (pc >> 2) & tp.selectorMask
}

// Predict returns the taken/not-taken prediction for pc, chosen by the
// selector between the bimodal and gshare sub-predictors (spec §4.5).
func (tp *TournamentPredictor) Predict(pc uint32) bool {
	useGshare := tp.selector[tp.selectorIndex(pc)] >= weakTaken
	if useGshare {
		return tp.gshare[tp.gshareIndex(pc)] >= weakTaken
	}
	return tp.bimodal[tp.bimodalIndex(pc)] >= weakTaken
}

// Update records a branch resolution: both sub-predictors' counters are
// updated unconditionally (so the untrusted one keeps learning), the
// selector is nudged toward whichever sub-predictor was correct, and the
// global history shift register records the outcome.
func (tp *TournamentPredictor) Update(pc uint32, taken bool) {
	bIdx := tp.bimodalIndex(pc)
	gIdx := tp.gshareIndex(pc)
	sIdx := tp.selectorIndex(pc)

	bimodalSaidTaken := tp.bimodal[bIdx] >= weakTaken
	gshareSaidTaken := tp.gshare[gIdx] >= weakTaken

	tp.bimodal[bIdx] = bump(tp.bimodal[bIdx], taken)
	tp.gshare[gIdx] = bump(tp.gshare[gIdx], taken)

	bimodalCorrect := bimodalSaidTaken == taken
	gshareCorrect := gshareSaidTaken == taken

	switch {
	case gshareCorrect && !bimodalCorrect:
		tp.selector[sIdx] = bump(tp.selector[sIdx], true) // nudge toward gshare
	case bimodalCorrect && !gshareCorrect:
		tp.selector[sIdx] = bump(tp.selector[sIdx], false) // nudge toward bimodal
	}

	tp.globalHistory = (tp.globalHistory << 1) | boolToBit(taken)
}

func boolToBit(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// Reset clears all predictor state.
func (tp *TournamentPredictor) Reset() {
	for i := range tp.bimodal {
		tp.bimodal[i] = weakTaken
	}
	for i := range tp.gshare {
		tp.gshare[i] = weakTaken
	}
	for i := range tp.selector {
		tp.selector[i] = weakTaken
	}
	tp.globalHistory = 0
}
