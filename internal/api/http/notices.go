package http

import (
	"context"
	"net/http"

	auth "github.com/mind-engage/mindengage-passcut/internal/auth/middleware"
	"github.com/mind-engage/mindengage-passcut/internal/exam"
)

type NoticeStore interface {
	UserRescoreDetails(ctx context.Context, userID string) ([]exam.RescoreDetail, error)
	GetRescoreEvent(ctx context.Context, id string) (exam.RescoreEvent, error)
	MarkRescoreDetailsRead(ctx context.Context, userID string) (int64, error)
}

type rescoreNotice struct {
	exam.RescoreDetail
	Reason           string                 `json:"reason"`
	ChangedQuestions []exam.ChangedQuestion `json:"changed_questions"`
	CorrectedAt      int64                  `json:"corrected_at"`
}

// GET /me/rescore-notices
// Unread notices come first.
func ListRescoreNoticesHandler(st NoticeStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := auth.RequireSubject(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		details, err := st.UserRescoreDetails(r.Context(), userID)
		if err != nil {
			writeError(w, "list rescore notices", err)
			return
		}
		events := map[string]exam.RescoreEvent{}
		out := make([]rescoreNotice, 0, len(details))
		for _, d := range details {
			ev, ok := events[d.EventID]
			if !ok {
				if ev, err = st.GetRescoreEvent(r.Context(), d.EventID); err != nil {
					writeError(w, "rescore event", err)
					return
				}
				events[d.EventID] = ev
			}
			out = append(out, rescoreNotice{RescoreDetail: d, Reason: ev.Reason, ChangedQuestions: ev.Changes, CorrectedAt: ev.CreatedAt})
		}
		unread := 0
		for _, n := range out {
			if !n.IsRead {
				unread++
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"notices": out, "unread": unread})
	}
}

// POST /me/rescore-notices/read
func MarkRescoreNoticesReadHandler(st NoticeStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := auth.RequireSubject(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		n, err := st.MarkRescoreDetailsRead(r.Context(), userID)
		if err != nil {
			writeError(w, "mark rescore notices", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"marked": n})
	}
}
