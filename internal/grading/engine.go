package grading

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mind-engage/mindengage-passcut/internal/exam"
)

var (
	// ErrSubjectConfig means configured subjects disagree with the rule table.
	ErrSubjectConfig = errors.New("subject configuration mismatch")
	// ErrKeyIncomplete means a required question has no answer-key row.
	ErrKeyIncomplete = errors.New("answer key incomplete")
)

// QuestionKey addresses one question of one subject.
type QuestionKey struct {
	SubjectID int64
	Number    int
}

// SubjectResult is the score of one subject.
type SubjectResult struct {
	SubjectID    int64   `json:"subject_id"`
	SubjectName  string  `json:"subject_name"`
	CorrectCount int     `json:"correct_count"`
	RawScore     float64 `json:"raw_score"`
	BonusScore   float64 `json:"bonus_score"`
	FinalScore   float64 `json:"final_score"`
	IsCutoff     bool    `json:"is_cutoff"`
}

// Result is the score of a whole submission.
type Result struct {
	Subjects   []SubjectResult `json:"subjects"`
	TotalScore float64         `json:"total_score"`
	BonusScore float64         `json:"bonus_score"`
	FinalScore float64         `json:"final_score"`
	HasCutoff  bool            `json:"has_cutoff"`
}

// Context is a validated, immutable scoring setup for one track: ordered
// subjects plus a complete answer key. Build it once and score many
// submissions with it.
type Context struct {
	track    exam.Track
	subjects []exam.Subject
	keys     map[QuestionKey]int
	byName   map[string]exam.Subject
}

// NewContext validates the subjects against the rule table and checks that
// every question of every subject has a key. Extra key rows are ignored.
func NewContext(t exam.Track, subjects []exam.Subject, keys []exam.AnswerKey) (*Context, error) {
	ordered := make([]exam.Subject, len(subjects))
	copy(ordered, subjects)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Ordinal < ordered[j].Ordinal })

	if err := ValidateSubjects(t, ordered); err != nil {
		return nil, err
	}
	idx := make(map[QuestionKey]int, len(keys))
	for _, k := range keys {
		idx[QuestionKey{SubjectID: k.SubjectID, Number: k.QuestionNumber}] = k.Answer
	}
	byName := make(map[string]exam.Subject, len(ordered))
	for _, s := range ordered {
		byName[NormalizeName(s.Name)] = s
		for q := 1; q <= s.QuestionCount; q++ {
			if _, ok := idx[QuestionKey{SubjectID: s.ID, Number: q}]; !ok {
				return nil, fmt.Errorf("%w: %s question %d", ErrKeyIncomplete, s.Name, q)
			}
		}
	}
	return &Context{track: t, subjects: ordered, keys: idx, byName: byName}, nil
}

func (c *Context) Track() exam.Track { return c.track }

func (c *Context) Subjects() []exam.Subject { return c.subjects }

// SubjectByName resolves a subject using the same normalization as the rule table.
func (c *Context) SubjectByName(name string) (exam.Subject, bool) {
	s, ok := c.byName[NormalizeName(name)]
	return s, ok
}

// Correct reports whether selected is the keyed answer for q. Unanswered
// (0) and unknown questions are never correct.
func (c *Context) Correct(q QuestionKey, selected int) bool {
	if selected == 0 {
		return false
	}
	ans, ok := c.keys[q]
	return ok && ans == selected
}

// Score computes per-subject and total scores. Missing answers count as wrong.
// Each subject value is rounded before it is added to the running totals.
func (c *Context) Score(answers map[QuestionKey]int, bonusRate float64) (Result, error) {
	rate, err := ClampBonusRate(bonusRate)
	if err != nil {
		return Result{}, err
	}
	res := Result{Subjects: make([]SubjectResult, 0, len(c.subjects))}
	for _, s := range c.subjects {
		correct := 0
		for q := 1; q <= s.QuestionCount; q++ {
			k := QuestionKey{SubjectID: s.ID, Number: q}
			if _, ok := c.keys[k]; !ok {
				return Result{}, fmt.Errorf("%w: %s question %d", ErrKeyIncomplete, s.Name, q)
			}
			if c.Correct(k, answers[k]) {
				correct++
			}
		}
		raw := Round2(float64(correct) * s.PointPerQuestion)
		bonus := Round2(s.MaxScore * rate)
		sr := SubjectResult{
			SubjectID:    s.ID,
			SubjectName:  s.Name,
			CorrectCount: correct,
			RawScore:     raw,
			BonusScore:   bonus,
			FinalScore:   Round2(raw + bonus),
			IsCutoff:     raw < s.MaxScore*CutoffRatio,
		}
		res.Subjects = append(res.Subjects, sr)
		res.TotalScore = Round2(res.TotalScore + sr.RawScore)
		res.BonusScore = Round2(res.BonusScore + sr.BonusScore)
		res.HasCutoff = res.HasCutoff || sr.IsCutoff
	}
	res.FinalScore = Round2(res.TotalScore + res.BonusScore)
	return res, nil
}
