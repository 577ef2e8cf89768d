package grading

import (
	"fmt"

	"github.com/mind-engage/mindengage-passcut/internal/exam"
)

// CutoffRatio is the share of a subject's max score below which the subject fails.
const CutoffRatio = 0.4

// Rule is the fixed definition of one subject on a track.
type Rule struct {
	Name             string
	QuestionCount    int
	PointPerQuestion float64
	MaxScore         float64
}

var ruleTable = map[exam.Track][]Rule{
	exam.TrackPublic: {
		{Name: "Constitution", QuestionCount: 20, PointPerQuestion: 2.5, MaxScore: 50},
		{Name: "Criminal Law", QuestionCount: 40, PointPerQuestion: 2.5, MaxScore: 100},
		{Name: "Police Science", QuestionCount: 40, PointPerQuestion: 2.5, MaxScore: 100},
	},
	exam.TrackCareer: {
		{Name: "Criminology", QuestionCount: 20, PointPerQuestion: 2.5, MaxScore: 50},
		{Name: "Criminal Law", QuestionCount: 40, PointPerQuestion: 2.5, MaxScore: 100},
		{Name: "Police Science", QuestionCount: 40, PointPerQuestion: 2.5, MaxScore: 100},
	},
}

// Rules returns a copy of the rule set for a track.
func Rules(t exam.Track) []Rule {
	rs := ruleTable[t]
	out := make([]Rule, len(rs))
	copy(out, rs)
	return out
}

// ValidateSubjects checks configured subjects against the rule table. Any
// mismatch means the system is not in a scoreable state.
func ValidateSubjects(t exam.Track, subjects []exam.Subject) error {
	rules, ok := ruleTable[t]
	if !ok {
		return fmt.Errorf("%w: no subject rules for track %q", ErrSubjectConfig, t)
	}
	if len(subjects) != len(rules) {
		return fmt.Errorf("%w: track %s expects %d subjects, got %d", ErrSubjectConfig, t, len(rules), len(subjects))
	}
	byName := make(map[string]Rule, len(rules))
	for _, r := range rules {
		byName[NormalizeName(r.Name)] = r
	}
	seen := map[string]bool{}
	for _, s := range subjects {
		n := NormalizeName(s.Name)
		r, ok := byName[n]
		if !ok {
			return fmt.Errorf("%w: unknown subject %q on track %s", ErrSubjectConfig, s.Name, t)
		}
		if seen[n] {
			return fmt.Errorf("%w: subject %q configured twice", ErrSubjectConfig, s.Name)
		}
		seen[n] = true
		switch {
		case s.QuestionCount != r.QuestionCount:
			return fmt.Errorf("%w: %s question count %d, rule says %d", ErrSubjectConfig, s.Name, s.QuestionCount, r.QuestionCount)
		case Round2(s.PointPerQuestion) != Round2(r.PointPerQuestion):
			return fmt.Errorf("%w: %s point per question %.2f, rule says %.2f", ErrSubjectConfig, s.Name, s.PointPerQuestion, r.PointPerQuestion)
		case Round2(s.MaxScore) != Round2(r.MaxScore):
			return fmt.Errorf("%w: %s max score %.2f, rule says %.2f", ErrSubjectConfig, s.Name, s.MaxScore, r.MaxScore)
		}
	}
	return nil
}
