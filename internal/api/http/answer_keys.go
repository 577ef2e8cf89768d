package http

import (
	"context"
	"net/http"

	"github.com/mind-engage/mindengage-passcut/internal/exam"
	"github.com/mind-engage/mindengage-passcut/internal/rescore"
)

// ExamLookup resolves the exam named in the URL.
type ExamLookup interface {
	GetExam(ctx context.Context, id int64) (exam.Exam, error)
}

type answerKeyReq struct {
	Track       string        `json:"track" validate:"required,oneof=PUBLIC CAREER public career"`
	IsConfirmed bool          `json:"is_confirmed"`
	Reason      string        `json:"reason" validate:"max=500"`
	Rows        []rescore.Row `json:"rows" validate:"required,min=1"`
}

func readAnswerKeyReq(w http.ResponseWriter, r *http.Request, exams ExamLookup) (rescore.Request, bool) {
	examID, ok := idParam(w, r, "examID")
	if !ok {
		return rescore.Request{}, false
	}
	var req answerKeyReq
	if !decode(w, r, &req) {
		return rescore.Request{}, false
	}
	if _, err := exams.GetExam(r.Context(), examID); err != nil {
		writeError(w, "load exam", err)
		return rescore.Request{}, false
	}
	t, _ := exam.ParseTrack(req.Track)
	return rescore.Request{
		ExamID:      examID,
		Track:       t,
		IsConfirmed: req.IsConfirmed,
		Reason:      req.Reason,
		Rows:        req.Rows,
	}, true
}

// POST /exams/{examID}/answer-keys/preview
func PreviewAnswerKeyHandler(svc *rescore.Service, exams ExamLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := readAnswerKeyReq(w, r, exams)
		if !ok {
			return
		}
		res, err := svc.Preview(r.Context(), req)
		if err != nil {
			writeError(w, "preview answer key", err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// POST /exams/{examID}/answer-keys
func CommitAnswerKeyHandler(svc *rescore.Service, exams ExamLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := readAnswerKeyReq(w, r, exams)
		if !ok {
			return
		}
		res, err := svc.Commit(r.Context(), req)
		if err != nil {
			writeError(w, "commit answer key", err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
