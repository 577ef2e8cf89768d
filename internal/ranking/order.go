package ranking

import (
	"sort"

	"github.com/mind-engage/mindengage-passcut/internal/exam"
)

// Order sorts a population for listing: final score, then the known final
// score, a passed fitness test and bonus points when a final prediction
// exists, then submission id.
func Order(entries []exam.PopulationEntry, finals map[int64]exam.FinalPrediction) []exam.PopulationEntry {
	out := make([]exam.PopulationEntry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		fa, oka := finals[a.SubmissionID]
		fb, okb := finals[b.SubmissionID]
		if oka && okb {
			if c := cmpOptFloat(fa.KnownFinalScore, fb.KnownFinalScore); c != 0 {
				return c > 0
			}
			if pa, pb := passed(fa.FitnessPassed), passed(fb.FitnessPassed); pa != pb {
				return pa
			}
			if fa.BonusPoints != fb.BonusPoints {
				return fa.BonusPoints > fb.BonusPoints
			}
		} else if oka != okb {
			return oka
		}
		return a.SubmissionID < b.SubmissionID
	})
	return out
}

// cmpOptFloat orders present values above absent ones.
func cmpOptFloat(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case *a > *b:
		return 1
	case *a < *b:
		return -1
	}
	return 0
}

func passed(p *bool) bool { return p != nil && *p }
