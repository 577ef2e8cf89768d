package http

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"

	auth "github.com/mind-engage/mindengage-passcut/internal/auth/middleware"
	"github.com/mind-engage/mindengage-passcut/internal/exam"
	"github.com/mind-engage/mindengage-passcut/internal/ranking"
	"github.com/mind-engage/mindengage-passcut/internal/rbac"
	"github.com/mind-engage/mindengage-passcut/internal/release"
	"github.com/mind-engage/mindengage-passcut/internal/rescore"
)

type Deps struct {
	Store   *exam.SQLStore
	Auth    *auth.AuthService
	Rescore *rescore.Service
	Ranking *ranking.Service
	Release *release.Runner
	Traffic TrafficTrigger // optional

	// RoleDB, when set, makes the stored user role authoritative over the
	// token claim.
	RoleDB *sql.DB
}

// Mount registers the pass-cut API on r.
func Mount(r chi.Router, d Deps) {
	r.Post("/auth/login", auth.LoginHandler(d.Auth, d.Store))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	// JWT → role in context → RBAC
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(d.Auth))
		if d.RoleDB != nil {
			pr.Use(auth.AttachRoleFromDB(d.RoleDB, false))
		}

		pr.With(rbac.Require(rbac.PermAnswerKeyPreview)).
			Post("/exams/{examID}/answer-keys/preview", PreviewAnswerKeyHandler(d.Rescore, d.Store))
		pr.With(rbac.Require(rbac.PermAnswerKeyCommit)).
			Post("/exams/{examID}/answer-keys", CommitAnswerKeyHandler(d.Rescore, d.Store))
		pr.With(rbac.Require(rbac.PermSubmissionScore)).
			Post("/exams/{examID}/submissions/score", ScoreSubmissionHandler(d.Store))

		owner := rbac.RequireOwnerOr(rbac.PermRankingView, OwnsSubmission(d.Store))
		pr.With(owner).Get("/submissions/{submissionID}/ranking", RankingHandler(d.Ranking, d.Traffic))
		pr.With(owner).Get("/submissions/{submissionID}/prediction", PredictionHandler(d.Ranking, d.Traffic))

		pr.With(rbac.Require(rbac.PermNoticeRead)).Get("/me/rescore-notices", ListRescoreNoticesHandler(d.Store))
		pr.With(rbac.Require(rbac.PermNoticeRead)).Post("/me/rescore-notices/read", MarkRescoreNoticesReadHandler(d.Store))

		pr.With(rbac.Require(rbac.PermReadinessView)).
			Get("/exams/{examID}/readiness", ReadinessHandler(d.Release))
		pr.With(rbac.Require(rbac.PermReleaseRun)).
			Post("/releases/run", RunReleaseHandler(d.Release))
	})
}
