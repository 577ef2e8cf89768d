package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mind-engage/mindengage-passcut/internal/exam"
	"github.com/mind-engage/mindengage-passcut/internal/grading"
)

// ScoringStore supplies the subjects and the current key of a track.
type ScoringStore interface {
	ExamLookup
	Subjects(ctx context.Context, t exam.Track) ([]exam.Subject, error)
	AnswerKeys(ctx context.Context, examID int64, t exam.Track) ([]exam.AnswerKey, error)
}

type answerDTO struct {
	SubjectID      int64  `json:"subject_id"`
	SubjectName    string `json:"subject_name"`
	QuestionNumber int    `json:"question_number" validate:"gte=1"`
	Selected       int    `json:"selected" validate:"gte=0,lte=4"`
}

// scoreReq takes the bonus as bonus_type, as a direct bonus_rate, or as
// per-category veteran_pct/hero_pct.
type scoreReq struct {
	Track      string      `json:"track" validate:"required,oneof=PUBLIC CAREER public career"`
	BonusType  string      `json:"bonus_type"`
	BonusRate  *float64    `json:"bonus_rate"`
	VeteranPct *int        `json:"veteran_pct" validate:"omitempty,oneof=0 5 10"`
	HeroPct    *int        `json:"hero_pct" validate:"omitempty,oneof=0 3 5"`
	Answers    []answerDTO `json:"answers" validate:"omitempty,dive"`
}

// bonusType folds veteran_pct and hero_pct into a bonus type. Both
// categories nonzero is rejected by BonusSelection.Type.
func (r scoreReq) bonusType() (string, error) {
	if r.VeteranPct == nil && r.HeroPct == nil {
		return r.BonusType, nil
	}
	if r.BonusType != "" {
		return "", fmt.Errorf("%w: bonus_type and veteran_pct/hero_pct are exclusive", grading.ErrBonus)
	}
	var sel grading.BonusSelection
	if r.VeteranPct != nil {
		sel.VeteranPct = *r.VeteranPct
	}
	if r.HeroPct != nil {
		sel.HeroPct = *r.HeroPct
	}
	bt, err := sel.Type()
	return string(bt), err
}

// POST /exams/{examID}/submissions/score
// Scores an answer sheet against the current key without storing it.
func ScoreSubmissionHandler(st ScoringStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		examID, ok := idParam(w, r, "examID")
		if !ok {
			return
		}
		var req scoreReq
		if !decode(w, r, &req) {
			return
		}
		ctx := r.Context()
		if _, err := st.GetExam(ctx, examID); err != nil {
			writeError(w, "load exam", err)
			return
		}
		t, _ := exam.ParseTrack(req.Track)
		bonusType, err := req.bonusType()
		if err != nil {
			writeError(w, "resolve bonus", err)
			return
		}
		_, rate, err := grading.ResolveBonus(bonusType, req.BonusRate)
		if err != nil {
			writeError(w, "resolve bonus", err)
			return
		}
		subjects, err := st.Subjects(ctx, t)
		if err != nil {
			writeError(w, "load subjects", err)
			return
		}
		keys, err := st.AnswerKeys(ctx, examID, t)
		if err != nil {
			writeError(w, "load answer key", err)
			return
		}
		gc, err := grading.NewContext(t, subjects, keys)
		if err != nil {
			writeError(w, "scoring setup", err)
			return
		}

		byID := make(map[int64]exam.Subject, len(gc.Subjects()))
		for _, s := range gc.Subjects() {
			byID[s.ID] = s
		}
		answers := make(map[grading.QuestionKey]int, len(req.Answers))
		for _, a := range req.Answers {
			s, ok := byID[a.SubjectID]
			if a.SubjectID == 0 {
				s, ok = gc.SubjectByName(a.SubjectName)
			}
			if !ok {
				http.Error(w, fmt.Sprintf("unknown subject %d %q on track %s", a.SubjectID, a.SubjectName, t), http.StatusBadRequest)
				return
			}
			if a.QuestionNumber > s.QuestionCount {
				http.Error(w, fmt.Sprintf("%s has %d questions, got %d", s.Name, s.QuestionCount, a.QuestionNumber), http.StatusBadRequest)
				return
			}
			k := grading.QuestionKey{SubjectID: s.ID, Number: a.QuestionNumber}
			if _, dup := answers[k]; dup {
				http.Error(w, fmt.Sprintf("%s question %d answered twice", s.Name, a.QuestionNumber), http.StatusBadRequest)
				return
			}
			answers[k] = a.Selected
		}
		res, err := gc.Score(answers, rate)
		if err != nil {
			writeError(w, "score", err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
