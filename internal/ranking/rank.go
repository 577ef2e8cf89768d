package ranking

import (
	"errors"
	"math"

	"github.com/mind-engage/mindengage-passcut/internal/exam"
)

// ErrNoPopulation means there is nobody to compare against.
var ErrNoPopulation = errors.New("no comparable population")

// Basis names which submissions a ranking was computed against.
type Basis string

const (
	BasisAll       Basis = "ALL_PARTICIPANTS"
	BasisNonCutoff Basis = "NON_CUTOFF_PARTICIPANTS"
)

// Standing is a rank within a population.
type Standing struct {
	Rank              int     `json:"rank"`
	Percentile        float64 `json:"percentile"`
	TotalParticipants int     `json:"total_participants"`
	Basis             Basis   `json:"ranking_basis"`
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// SelectPopulation applies the comparison rule: a submission with a cutoff
// is compared against everyone, a clean one only against clean submissions.
func SelectPopulation(entries []exam.PopulationEntry, selfHasCutoff bool) ([]exam.PopulationEntry, Basis) {
	if selfHasCutoff {
		return entries, BasisAll
	}
	out := make([]exam.PopulationEntry, 0, len(entries))
	for _, e := range entries {
		if !e.HasCutoff {
			out = append(out, e)
		}
	}
	return out, BasisNonCutoff
}

// Rank places score among scores: rank is one more than the number of
// strictly higher scores, percentile the share strictly lower.
func Rank(score float64, scores []float64) (Standing, error) {
	if len(scores) == 0 {
		return Standing{}, ErrNoPopulation
	}
	higher, lower := 0, 0
	for _, s := range scores {
		switch {
		case s > score:
			higher++
		case s < score:
			lower++
		}
	}
	return Standing{
		Rank:              higher + 1,
		Percentile:        round2(float64(lower) / float64(len(scores)) * 100),
		TotalParticipants: len(scores),
	}, nil
}

// StandingOf ranks self by final score within pop. The entry of pop with
// self's id is replaced by self, so callers can rank hypothetical scores.
func StandingOf(pop []exam.PopulationEntry, self exam.PopulationEntry) (Standing, error) {
	merged := make([]exam.PopulationEntry, 0, len(pop)+1)
	found := false
	for _, e := range pop {
		if e.SubmissionID == self.SubmissionID {
			e, found = self, true
		}
		merged = append(merged, e)
	}
	if !found {
		merged = append(merged, self)
	}
	sel, basis := SelectPopulation(merged, self.HasCutoff)
	st, err := Rank(self.FinalScore, finalScores(sel))
	st.Basis = basis
	return st, err
}

func finalScores(entries []exam.PopulationEntry) []float64 {
	out := make([]float64, len(entries))
	for i, e := range entries {
		out[i] = e.FinalScore
	}
	return out
}
