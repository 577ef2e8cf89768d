package release_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-passcut/internal/exam"
	"github.com/mind-engage/mindengage-passcut/internal/exam/examtest"
	"github.com/mind-engage/mindengage-passcut/internal/release"
	syncx "github.com/mind-engage/mindengage-passcut/internal/sync"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// readyExam seeds one public region (recruit 1) with n clean submissions
// of distinct scores submitted two hours before now.
func readyExam(t *testing.T, n int) *examtest.Fixture {
	t.Helper()
	f := examtest.New(t)
	applicants := 30
	region := f.AddRegion(t, "Seoul", 1, 0, &applicants)
	for i := 0; i < n; i++ {
		f.AddSubmission(t, examtest.Paper{
			UserID: "u" + string(rune('a'+i)), RegionID: region,
			Correct: []int{20, 40, 40 - i}, CreatedAt: now.Add(-2 * time.Hour).Unix(),
		})
	}
	return f
}

func newRunner(st release.Store) *release.Runner {
	r := release.NewRunner(st, release.DefaultSettings())
	r.Now = func() time.Time { return now }
	return r
}

func TestRun_PublishesAndAdvances(t *testing.T) {
	f := readyExam(t, 8)
	ctx := context.Background()
	r := newRunner(f.Store)
	events := syncx.NewEventRepo(f.Store.DB(), "")
	r.Events = events

	res, err := r.Run(ctx, release.Trigger{Kind: release.TriggerCron})
	if err != nil {
		t.Fatal(err)
	}
	if res.Reason != release.ReasonCreated || !res.Triggered || res.NextReleaseNumber != 1 {
		t.Fatalf("first run: %+v", res)
	}
	if res.EligibleRegionCount != 1 || res.ReadyRegionCount != 1 || res.ReadyRegionRatio != 100 {
		t.Fatalf("ratio: %+v", res)
	}
	snaps, err := f.Store.Snapshots(ctx, res.ReleaseID)
	if err != nil || len(snaps) != 1 || snaps[0].Status != string(release.StatusReady) || snaps[0].ParticipantCount != 8 {
		t.Fatalf("snapshots: %+v %v", snaps, err)
	}
	if n, _ := f.Store.CountNotices(ctx); n != 1 {
		t.Fatalf("notices: %d", n)
	}

	res, err = r.Run(ctx, release.Trigger{Kind: release.TriggerCron})
	if err != nil || res.Reason != release.ReasonCreated || res.NextReleaseNumber != 2 {
		t.Fatalf("second run: %+v %v", res, err)
	}
	logged, _ := events.Since(ctx, 0, 10)
	if len(logged) != 2 || logged[1].Type != syncx.TypeReleasePublished {
		t.Fatalf("event log: %+v", logged)
	}
}

func TestRun_InsufficientSample(t *testing.T) {
	f := examtest.New(t)
	applicants := 30
	region := f.AddRegion(t, "Busan", 5, 0, &applicants)
	for i := 0; i < 4; i++ {
		f.AddSubmission(t, examtest.Paper{UserID: "u" + string(rune('a'+i)), RegionID: region,
			Correct: []int{20, 40, 40 - i}, CreatedAt: now.Add(-2 * time.Hour).Unix()})
	}
	res, err := newRunner(f.Store).Run(context.Background(), release.Trigger{Kind: release.TriggerCron})
	if err != nil {
		t.Fatal(err)
	}
	if res.Reason != release.ReasonThresholdNotReached || len(res.Evaluations) != 1 {
		t.Fatalf("run: %+v", res)
	}
	if got := res.Evaluations[0].Status; got != release.StatusInsufficientSample {
		t.Fatalf("status %s", got)
	}
}

func TestRun_Gates(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		f := readyExam(t, 8)
		_ = f.Store.PutSetting(ctx, release.KeyEnabled, "false")
		res, _ := newRunner(f.Store).Run(ctx, release.Trigger{Kind: release.TriggerCron, Force: true})
		if res.Reason != release.ReasonDisabled {
			t.Fatalf("got %s", res.Reason)
		}
	})

	t.Run("mode blocked unless forced", func(t *testing.T) {
		f := readyExam(t, 8)
		_ = f.Store.PutSetting(ctx, release.KeyTriggerMode, string(release.ModeCronOnly))
		r := newRunner(f.Store)
		res, _ := r.Run(ctx, release.Trigger{Kind: release.TriggerTraffic})
		if res.Reason != release.ReasonModeBlocked {
			t.Fatalf("got %s", res.Reason)
		}
		res, _ = r.Run(ctx, release.Trigger{Kind: release.TriggerTraffic, Force: true})
		if res.Reason != release.ReasonCreated {
			t.Fatalf("forced: got %s", res.Reason)
		}
	})

	t.Run("traffic throttled", func(t *testing.T) {
		f := readyExam(t, 3) // not enough to publish
		r := newRunner(f.Store)
		res, _ := r.Run(ctx, release.Trigger{Kind: release.TriggerTraffic})
		if res.Reason != release.ReasonThresholdNotReached {
			t.Fatalf("first: got %s", res.Reason)
		}
		res, _ = r.Run(ctx, release.Trigger{Kind: release.TriggerTraffic})
		if res.Reason != release.ReasonThrottled {
			t.Fatalf("second: got %s", res.Reason)
		}
		r.Now = func() time.Time { return now.Add(10 * time.Minute) }
		res, _ = r.Run(ctx, release.Trigger{Kind: release.TriggerTraffic})
		if res.Reason == release.ReasonThrottled {
			t.Fatalf("interval elapsed but still throttled")
		}
	})

	t.Run("no target rows", func(t *testing.T) {
		f := examtest.New(t)
		f.AddRegion(t, "Jeju", 0, 0, nil)
		res, _ := newRunner(f.Store).Run(ctx, release.Trigger{Kind: release.TriggerCron})
		if res.Reason != release.ReasonNoTargetRows {
			t.Fatalf("got %s", res.Reason)
		}
	})

	t.Run("unknown exam", func(t *testing.T) {
		f := examtest.New(t)
		res, _ := newRunner(f.Store).Run(ctx, release.Trigger{ExamID: 42, Kind: release.TriggerCron})
		if res.Reason != release.ReasonNoActiveExam {
			t.Fatalf("got %s", res.Reason)
		}
	})

	t.Run("all completed", func(t *testing.T) {
		f := readyExam(t, 8)
		r := newRunner(f.Store)
		for i := 0; i < release.MaxReleases; i++ {
			if res, err := r.Run(ctx, release.Trigger{Kind: release.TriggerCron}); err != nil || res.Reason != release.ReasonCreated {
				t.Fatalf("release %d: %+v %v", i+1, res, err)
			}
		}
		res, _ := r.Run(ctx, release.Trigger{Kind: release.TriggerCron})
		if res.Reason != release.ReasonAllCompleted {
			t.Fatalf("got %s", res.Reason)
		}
	})
}

// staleStore hides published releases, as a concurrent trigger would see
// them before the other one commits.
type staleStore struct{ *exam.SQLStore }

func (staleStore) Releases(context.Context, int64) ([]exam.PassCutRelease, error) { return nil, nil }

func TestRun_ConcurrentPublishIsDuplicated(t *testing.T) {
	f := readyExam(t, 8)
	ctx := context.Background()
	if res, _ := newRunner(f.Store).Run(ctx, release.Trigger{Kind: release.TriggerCron}); res.Reason != release.ReasonCreated {
		t.Fatalf("first: %s", res.Reason)
	}
	res, err := newRunner(staleStore{f.Store}).Run(ctx, release.Trigger{Kind: release.TriggerCron})
	if err != nil || res.Reason != release.ReasonDuplicated || res.Triggered {
		t.Fatalf("second: %+v %v", res, err)
	}
	if n, _ := f.Store.CountNotices(ctx); n != 1 {
		t.Fatalf("duplicate run wrote a notice: %d", n)
	}
}

type noAdminStore struct{ *exam.SQLStore }

func (noAdminStore) AdminUserID(context.Context) (string, error) { return "", exam.ErrNoAdminUser }

func TestRun_NoAdminUser(t *testing.T) {
	f := readyExam(t, 8)
	ctx := context.Background()
	res, err := newRunner(noAdminStore{f.Store}).Run(ctx, release.Trigger{Kind: release.TriggerCron})
	if err != nil || res.Reason != release.ReasonNoAdminUser {
		t.Fatalf("with notices: %+v %v", res, err)
	}

	_ = f.Store.PutSetting(ctx, release.KeyAutoNotice, "false")
	res, err = newRunner(noAdminStore{f.Store}).Run(ctx, release.Trigger{Kind: release.TriggerCron})
	if err != nil || res.Reason != release.ReasonCreated {
		t.Fatalf("without notices: %+v %v", res, err)
	}
	rels, _ := f.Store.Releases(ctx, f.ExamID)
	if len(rels) != 1 || rels[0].CreatedBy != "system" {
		t.Fatalf("releases: %+v", rels)
	}
}

func TestReadiness_DoesNotPublish(t *testing.T) {
	f := readyExam(t, 8)
	ctx := context.Background()
	res, err := newRunner(f.Store).Readiness(ctx, f.ExamID)
	if err != nil || res.ReadyRegionCount != 1 || res.Reason != "" {
		t.Fatalf("readiness: %+v %v", res, err)
	}
	if rels, _ := f.Store.Releases(ctx, f.ExamID); len(rels) != 0 {
		t.Fatalf("readiness published %d releases", len(rels))
	}
	if _, err := f.Store.GetExam(ctx, 42); !errors.Is(err, exam.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
