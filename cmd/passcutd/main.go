package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/crypto/bcrypt"

	api "github.com/mind-engage/mindengage-passcut/internal/api/http"
	auth "github.com/mind-engage/mindengage-passcut/internal/auth/middleware"
	"github.com/mind-engage/mindengage-passcut/internal/config"
	"github.com/mind-engage/mindengage-passcut/internal/db"
	"github.com/mind-engage/mindengage-passcut/internal/exam"
	"github.com/mind-engage/mindengage-passcut/internal/ranking"
	"github.com/mind-engage/mindengage-passcut/internal/release"
	"github.com/mind-engage/mindengage-passcut/internal/rescore"
	syncx "github.com/mind-engage/mindengage-passcut/internal/sync"
)

func main() {
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	store := exam.NewSQLStore(dbh, cfg.DBDriver)
	if err := seedAdmin(ctx, store, cfg); err != nil {
		log.Fatalf("seed admin: %v", err)
	}

	// --- Engine ---
	events := syncx.NewEventRepo(dbh, cfg.SiteID)

	rs := rescore.NewService(store)
	rs.BatchSize = cfg.RescoreBatchSize
	rs.Notifier = rescore.NewNotifier(store)
	rs.Events = events

	runner := release.NewRunner(store, release.FromConfig(cfg))
	runner.Events = events

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	api.Mount(r, api.Deps{
		Store:   store,
		Auth:    auth.NewAuthService(cfg.AuthHMACSecret),
		Rescore: rs,
		Ranking: ranking.NewService(store),
		Release: runner,
		Traffic: trafficTrigger(runner),
		RoleDB:  dbh,
	})

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go cronLoop(runCtx, runner, cfg.ReleaseCronEvery)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-runCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("listening on %s (db=%s, release mode=%s)", cfg.HTTPAddr, cfg.DBDriver, cfg.ReleaseTriggerMode)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	_ = dbh.Close()
}

// trafficTrigger runs the evaluator off the request path; the runner's
// throttle drops most of these.
func trafficTrigger(rn *release.Runner) api.TrafficTrigger {
	return func(ctx context.Context, examID int64) {
		go func() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
			defer cancel()
			res, err := rn.Run(ctx, release.Trigger{ExamID: examID, Kind: release.TriggerTraffic})
			if err != nil {
				log.Printf("[release] traffic trigger exam=%d: %v", examID, err)
				return
			}
			if res.Reason != release.ReasonThrottled {
				log.Printf("[release] traffic trigger exam=%d: %s", examID, res.Reason)
			}
		}()
	}
}

func cronLoop(ctx context.Context, rn *release.Runner, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			res, err := rn.Run(ctx, release.Trigger{Kind: release.TriggerCron})
			if err != nil {
				log.Printf("[release] cron: %v", err)
				continue
			}
			log.Printf("[release] cron: %s ready=%d/%d", res.Reason, res.ReadyRegionCount, res.EligibleRegionCount)
		}
	}
}

func seedAdmin(ctx context.Context, st *exam.SQLStore, cfg config.Config) error {
	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	id := "admin-" + cfg.AdminUsername
	if u, err := st.UserByUsername(ctx, cfg.AdminUsername); err == nil {
		id = u.ID
	} else if !errors.Is(err, exam.ErrNotFound) {
		return err
	}
	return st.PutUser(ctx, exam.User{ID: id, Username: cfg.AdminUsername, Role: exam.RoleAdmin, PasswordHash: string(hash)})
}
