package release

import "math"

const (
	maxCutShiftPenalty = 40
	maxInflowPenalty   = 30
	maxTiePenalty      = 30
)

// Signals are the raw inputs of the stability score.
type Signals struct {
	CurrentCut    *float64 `json:"current_cut,omitempty"`
	HistoricalCut *float64 `json:"historical_cut,omitempty"` // cut as of an hour ago
	InflowRatePct float64  `json:"inflow_rate_pct"`
	TieRatePct    float64  `json:"tie_rate_pct"`
}

type Stability struct {
	CutShiftPenalty float64 `json:"cut_shift_penalty"`
	InflowPenalty   float64 `json:"inflow_penalty"`
	TiePenalty      float64 `json:"tie_penalty"`
	Score           float64 `json:"score"`
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// StabilityScore combines the three penalties into a 0..100 score. Without
// both a current and an hour-old cut the shift penalty is maximal.
func StabilityScore(sig Signals) Stability {
	st := Stability{CutShiftPenalty: maxCutShiftPenalty}
	if sig.CurrentCut != nil && sig.HistoricalCut != nil {
		st.CutShiftPenalty = math.Min(maxCutShiftPenalty, math.Abs(*sig.CurrentCut-*sig.HistoricalCut)*20)
	}
	st.InflowPenalty = math.Min(maxInflowPenalty, sig.InflowRatePct*1.5)
	st.TiePenalty = math.Min(maxTiePenalty, sig.TieRatePct*1.2)
	st.CutShiftPenalty = round2(st.CutShiftPenalty)
	st.InflowPenalty = round2(st.InflowPenalty)
	st.TiePenalty = round2(st.TiePenalty)
	st.Score = round2(math.Max(0, 100-st.CutShiftPenalty-st.InflowPenalty-st.TiePenalty))
	return st
}
