package http

import (
	"net/http"
	"strings"

	"github.com/mind-engage/mindengage-passcut/internal/release"
)

// GET /exams/{examID}/readiness
func ReadinessHandler(rn *release.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		examID, ok := idParam(w, r, "examID")
		if !ok {
			return
		}
		res, err := rn.Readiness(r.Context(), examID)
		if err != nil {
			writeError(w, "readiness", err)
			return
		}
		if res.Reason == release.ReasonNoActiveExam {
			http.Error(w, "exam not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

type runReleaseReq struct {
	ExamID  int64  `json:"exam_id" validate:"gte=0"`
	Trigger string `json:"trigger" validate:"omitempty,oneof=traffic cron TRAFFIC CRON"`
	Force   bool   `json:"force"`
}

// POST /releases/run
// Manual runs default to the cron trigger; expected outcomes such as
// "threshold-not-reached" come back as 200 with the reason set.
func RunReleaseHandler(rn *release.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req runReleaseReq
		if r.ContentLength != 0 && !decode(w, r, &req) {
			return
		}
		kind := release.TriggerCron
		if req.Trigger != "" {
			k, err := release.ParseTriggerKind(strings.ToLower(req.Trigger))
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			kind = k
		}
		res, err := rn.Run(r.Context(), release.Trigger{ExamID: req.ExamID, Kind: kind, Force: req.Force})
		if err != nil {
			writeError(w, "run release", err)
			return
		}
		status := http.StatusOK
		if res.Reason == release.ReasonCreated {
			status = http.StatusCreated
		}
		writeJSON(w, status, res)
	}
}
