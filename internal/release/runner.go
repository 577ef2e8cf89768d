package release

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-passcut/internal/exam"
	syncx "github.com/mind-engage/mindengage-passcut/internal/sync"
)

type Reason string

const (
	ReasonDisabled            Reason = "disabled"
	ReasonModeBlocked         Reason = "mode-blocked"
	ReasonThrottled           Reason = "throttled"
	ReasonNoActiveExam        Reason = "no-active-exam"
	ReasonNoTargetRows        Reason = "no-target-rows"
	ReasonAllCompleted        Reason = "all-completed"
	ReasonThresholdNotReached Reason = "threshold-not-reached"
	ReasonNoAdminUser         Reason = "no-admin-user"
	ReasonCreated             Reason = "created"
	ReasonDuplicated          Reason = "duplicated"
)

// systemAuthor signs automatic releases when no admin exists and no notice
// is posted.
const systemAuthor = "system"

type Store interface {
	Settings(ctx context.Context) (map[string]string, error)
	ActiveExam(ctx context.Context) (exam.Exam, error)
	GetExam(ctx context.Context, id int64) (exam.Exam, error)
	Releases(ctx context.Context, examID int64) ([]exam.PassCutRelease, error)
	Regions(ctx context.Context) ([]exam.Region, error)
	Population(ctx context.Context, f exam.PopulationFilter) ([]exam.PopulationEntry, error)
	AdminUserID(ctx context.Context) (string, error)
	PublishRelease(ctx context.Context, rel exam.PassCutRelease, snaps []exam.PassCutSnapshot, notice *exam.Notice) error
}

// Recorder receives the audit event of a publication.
type Recorder interface {
	Record(ctx context.Context, typ, key string, data any) error
}

// Trigger asks for one evaluation. ExamID 0 means the active exam. Force
// skips the mode gate and the throttle.
type Trigger struct {
	ExamID int64       `json:"exam_id,omitempty"`
	Kind   TriggerKind `json:"trigger"`
	Force  bool        `json:"force,omitempty"`
}

type Result struct {
	Triggered           bool         `json:"triggered"`
	ExamID              int64        `json:"exam_id,omitempty"`
	NextReleaseNumber   int          `json:"next_release_number,omitempty"`
	ReadyRegionRatio    float64      `json:"ready_region_ratio"`
	RequiredRatio       float64      `json:"required_ratio,omitempty"`
	EligibleRegionCount int          `json:"eligible_region_count"`
	ReadyRegionCount    int          `json:"ready_region_count"`
	ReleaseID           string       `json:"release_id,omitempty"`
	Reason              Reason       `json:"reason"`
	Evaluations         []Evaluation `json:"evaluations,omitempty"`
}

// Runner evaluates readiness and publishes releases. The per-exam
// timestamps only cut down redundant work; the unique release number in the
// store is what prevents double publication.
type Runner struct {
	Store    Store
	Defaults Settings
	Events   Recorder // optional
	Now      func() time.Time

	mu          sync.Mutex
	lastChecked map[int64]time.Time
}

func NewRunner(st Store, defaults Settings) *Runner {
	return &Runner{Store: st, Defaults: defaults.Normalize(), Now: time.Now, lastChecked: map[int64]time.Time{}}
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// LoadSettings overlays the stored site settings on the defaults.
func (r *Runner) LoadSettings(ctx context.Context) (Settings, error) {
	kv, err := r.Store.Settings(ctx)
	if err != nil {
		return Settings{}, err
	}
	return Merge(r.Defaults, kv), nil
}

// throttle reports whether a traffic evaluation for key ran too recently,
// and records this one otherwise.
func (r *Runner) throttle(key int64, interval time.Duration, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastChecked == nil {
		r.lastChecked = map[int64]time.Time{}
	}
	if last, ok := r.lastChecked[key]; ok && now.Sub(last) < interval {
		return true
	}
	r.lastChecked[key] = now
	return false
}

func (r *Runner) resolveExam(ctx context.Context, id int64) (exam.Exam, error) {
	if id == 0 {
		return r.Store.ActiveExam(ctx)
	}
	e, err := r.Store.GetExam(ctx, id)
	if errors.Is(err, exam.ErrNotFound) {
		return exam.Exam{}, exam.ErrNoActiveExam
	}
	return e, err
}

// Run performs one triggered evaluation and publishes the next release
// when enough regions are ready. Expected outcomes are reported through
// Result.Reason; only store failures return an error.
func (r *Runner) Run(ctx context.Context, trig Trigger) (Result, error) {
	s, err := r.LoadSettings(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load settings: %w", err)
	}
	if !s.Enabled {
		return Result{Reason: ReasonDisabled}, nil
	}
	if !trig.Force && !s.Mode.Allows(trig.Kind) {
		return Result{Reason: ReasonModeBlocked}, nil
	}
	now := r.now()
	if !trig.Force && trig.Kind == TriggerTraffic && r.throttle(trig.ExamID, s.CheckInterval, now) {
		return Result{Reason: ReasonThrottled}, nil
	}

	res, err := r.evaluate(ctx, trig.ExamID, s, now)
	if err != nil || res.Reason != "" {
		return res, err
	}
	if res.ReadyRegionRatio < res.RequiredRatio {
		res.Reason = ReasonThresholdNotReached
		return res, nil
	}

	author, err := r.Store.AdminUserID(ctx)
	switch {
	case errors.Is(err, exam.ErrNoAdminUser) && s.AutoNotice:
		res.Reason = ReasonNoAdminUser
		return res, nil
	case errors.Is(err, exam.ErrNoAdminUser):
		author = systemAuthor
	case err != nil:
		return res, err
	}

	rel := exam.PassCutRelease{
		ID:            uuid.NewString(),
		ExamID:        res.ExamID,
		ReleaseNumber: res.NextReleaseNumber,
		Trigger:       string(trig.Kind),
		ReadyRatio:    res.ReadyRegionRatio,
		CreatedBy:     author,
		CreatedAt:     now.Unix(),
	}
	snaps := make([]exam.PassCutSnapshot, 0, len(res.Evaluations))
	for _, ev := range res.Evaluations {
		snaps = append(snaps, ev.Snapshot(rel.ID))
	}
	var notice *exam.Notice
	if s.AutoNotice {
		notice = &exam.Notice{
			Title:    fmt.Sprintf("Pass-cut estimate #%d published", rel.ReleaseNumber),
			Body:     fmt.Sprintf("Estimate #%d is based on %d of %d regions ready (%.2f%%).", rel.ReleaseNumber, res.ReadyRegionCount, res.EligibleRegionCount, res.ReadyRegionRatio),
			AuthorID: author,
		}
	}

	switch err := r.Store.PublishRelease(ctx, rel, snaps, notice); {
	case errors.Is(err, exam.ErrDuplicateRelease):
		log.Printf("[release] exam=%d release=%d already published", rel.ExamID, rel.ReleaseNumber)
		res.Reason = ReasonDuplicated
		return res, nil
	case err != nil:
		return res, fmt.Errorf("publish release: %w", err)
	}
	res.Triggered, res.ReleaseID, res.Reason = true, rel.ID, ReasonCreated
	log.Printf("[release] exam=%d release=%d published trigger=%s ready=%d/%d",
		rel.ExamID, rel.ReleaseNumber, trig.Kind, res.ReadyRegionCount, res.EligibleRegionCount)
	if r.Events != nil {
		if err := r.Events.Record(ctx, syncx.TypeReleasePublished, rel.ID, res); err != nil {
			log.Printf("[release] event log: %v", err)
		}
	}
	return res, nil
}

// Readiness evaluates every eligible pair of an exam without publishing.
func (r *Runner) Readiness(ctx context.Context, examID int64) (Result, error) {
	s, err := r.LoadSettings(ctx)
	if err != nil {
		return Result{}, err
	}
	return r.evaluate(ctx, examID, s, r.now())
}

// evaluate fills everything up to the ratio comparison. A non-empty Reason
// means there is nothing to evaluate.
func (r *Runner) evaluate(ctx context.Context, examID int64, s Settings, now time.Time) (Result, error) {
	e, err := r.resolveExam(ctx, examID)
	if errors.Is(err, exam.ErrNoActiveExam) {
		return Result{Reason: ReasonNoActiveExam}, nil
	}
	if err != nil {
		return Result{}, err
	}
	res := Result{ExamID: e.ID}

	releases, err := r.Store.Releases(ctx, e.ID)
	if err != nil {
		return res, err
	}
	res.NextReleaseNumber = nextReleaseNumber(releases)
	if res.NextReleaseNumber == 0 {
		res.Reason = ReasonAllCompleted
		return res, nil
	}
	res.RequiredRatio = s.ReadyRatioProfile.ReadyRatioThreshold(res.NextReleaseNumber)

	regions, err := r.Store.Regions(ctx)
	if err != nil {
		return res, err
	}
	pop, err := r.Store.Population(ctx, exam.PopulationFilter{ExamID: e.ID})
	if err != nil {
		return res, err
	}
	type pairKey struct {
		region int64
		track  exam.Track
	}
	grouped := map[pairKey][]exam.PopulationEntry{}
	for _, entry := range pop {
		k := pairKey{entry.RegionID, entry.Track}
		grouped[k] = append(grouped[k], entry)
	}

	for _, reg := range regions {
		for _, t := range exam.Tracks {
			if reg.RecruitCount(t) <= 0 {
				continue
			}
			ev := Evaluate(Pair{Region: reg, Track: t, Entries: grouped[pairKey{reg.ID, t}]}, s, res.NextReleaseNumber, now)
			res.Evaluations = append(res.Evaluations, ev)
			if ev.Status == StatusReady {
				res.ReadyRegionCount++
			}
		}
	}
	res.EligibleRegionCount = len(res.Evaluations)
	if res.EligibleRegionCount == 0 {
		res.Reason = ReasonNoTargetRows
		return res, nil
	}
	res.ReadyRegionRatio = round2(float64(res.ReadyRegionCount) / float64(res.EligibleRegionCount) * 100)
	return res, nil
}

// nextReleaseNumber is the first unused number in 1..MaxReleases, or 0.
func nextReleaseNumber(existing []exam.PassCutRelease) int {
	used := map[int]bool{}
	for _, r := range existing {
		used[r.ReleaseNumber] = true
	}
	for n := 1; n <= MaxReleases; n++ {
		if !used[n] {
			return n
		}
	}
	return 0
}
