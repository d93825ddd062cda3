package btb

// Unit bundles the BTB and the tournament predictor behind the single
// fetch-stage procedure described in spec §4.5/§4.6: query both together,
// predict taken only when the BTB hits AND the tournament predictor
// favors taken, and update both on resolution in EX.
type Unit struct {
	btb       *BTB
	predictor *TournamentPredictor
}

// NewUnit creates a combined BTB + tournament predictor fetch-stage unit.
func NewUnit(btbEntries int, predictorCfg PredictorConfig) *Unit {
	return &Unit{
		btb:       New(btbEntries),
		predictor: NewTournamentPredictor(predictorCfg),
	}
}

// Predict implements the fetch-stage procedure: if the BTB hits for pc
// and the tournament predictor calls it taken, the predicted next PC is
// the BTB's stored target; otherwise it's pc+4 (spec §4.5).
func (u *Unit) Predict(pc uint32) (predictedPC uint32, predictedTaken bool) {
	hit, target := u.btb.Predict(pc)
	taken := hit && u.predictor.Predict(pc)
	if taken {
		return target, true
	}
	return pc + 4, false
}

// Resolve is called once a branch settles in EX (spec §4.6 step 5): it
// always updates the tournament predictor and global history, and
// updates the BTB target only when the branch was actually taken.
func (u *Unit) Resolve(pc uint32, taken bool, target uint32) {
	u.predictor.Update(pc, taken)
	if taken {
		u.btb.Update(pc, target)
	}
}

// BTBStats exposes the underlying BTB's hit/miss counters.
func (u *Unit) BTBStats() Stats {
	return u.btb.Stats()
}

// Reset clears both the BTB and the predictor tables.
func (u *Unit) Reset() {
	u.btb.Reset()
	u.predictor.Reset()
}
