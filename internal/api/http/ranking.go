package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	auth "github.com/mind-engage/mindengage-passcut/internal/auth/middleware"
	"github.com/mind-engage/mindengage-passcut/internal/exam"
	"github.com/mind-engage/mindengage-passcut/internal/ranking"
)

// TrafficTrigger is fired after a ranking read so the release evaluator can
// run on user traffic. The runner throttles it per exam.
type TrafficTrigger func(ctx context.Context, examID int64)

type SubmissionLookup interface {
	GetSubmission(ctx context.Context, id int64) (exam.Submission, error)
}

// OwnsSubmission reports whether the token subject submitted the
// submission in the URL. Used with rbac.RequireOwnerOr.
func OwnsSubmission(st SubmissionLookup) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		sub := auth.SubjectFromContext(r.Context())
		if sub == "" {
			return false
		}
		id, err := parseID(chi.URLParam(r, "submissionID"))
		if err != nil {
			return false
		}
		s, err := st.GetSubmission(r.Context(), id)
		return err == nil && s.UserID == sub
	}
}

// GET /submissions/{submissionID}/ranking
func RankingHandler(svc *ranking.Service, fire TrafficTrigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "submissionID")
		if !ok {
			return
		}
		res, err := svc.RankSubmission(r.Context(), id)
		if err != nil {
			writeError(w, "rank submission", err)
			return
		}
		if fire != nil {
			fire(r.Context(), res.ExamID)
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// GET /submissions/{submissionID}/prediction
func PredictionHandler(svc *ranking.Service, fire TrafficTrigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "submissionID")
		if !ok {
			return
		}
		res, err := svc.Predict(r.Context(), id)
		if err != nil {
			writeError(w, "predict submission", err)
			return
		}
		if fire != nil {
			fire(r.Context(), res.ExamID)
		}
		writeJSON(w, http.StatusOK, res)
	}
}
