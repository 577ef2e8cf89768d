package release

import (
	"testing"
	"time"

	"github.com/mind-engage/mindengage-passcut/internal/config"
	"github.com/mind-engage/mindengage-passcut/internal/exam"
)

func f64(v float64) *float64 { return &v }
func iptr(v int) *int        { return &v }

func TestStabilityScore_FloorsAtZero(t *testing.T) {
	st := StabilityScore(Signals{CurrentCut: f64(203), HistoricalCut: f64(200), InflowRatePct: 40, TieRatePct: 50})
	if st.CutShiftPenalty != 40 || st.InflowPenalty != 30 || st.TiePenalty != 30 {
		t.Fatalf("penalties should clamp at caps: %+v", st)
	}
	if st.Score != 0 {
		t.Fatalf("score = %v, want 0", st.Score)
	}
}

func TestStabilityScore(t *testing.T) {
	cases := []struct {
		name string
		sig  Signals
		want Stability
	}{
		{"stable", Signals{CurrentCut: f64(200), HistoricalCut: f64(200), TieRatePct: 10},
			Stability{TiePenalty: 12, Score: 88}},
		{"small drift", Signals{CurrentCut: f64(200), HistoricalCut: f64(199.5), InflowRatePct: 10},
			Stability{CutShiftPenalty: 10, InflowPenalty: 15, Score: 75}},
		{"no history", Signals{CurrentCut: f64(200)},
			Stability{CutShiftPenalty: 40, Score: 60}},
	}
	for _, tc := range cases {
		if got := StabilityScore(tc.sig); got != tc.want {
			t.Errorf("%s: got %+v want %+v", tc.name, got, tc.want)
		}
	}
}

func TestProfileTables(t *testing.T) {
	if ProfileBalanced.MinSample() != 8 {
		t.Fatalf("balanced min sample = %d", ProfileBalanced.MinSample())
	}
	for _, p := range []Profile{ProfileAggressive, ProfileBalanced, ProfileConservative} {
		for n := 2; n <= MaxReleases; n++ {
			if p.CoverageThreshold(n) <= p.CoverageThreshold(n-1) || p.StabilityThreshold(n) <= p.StabilityThreshold(n-1) {
				t.Errorf("%s thresholds must rise with the release number", p)
			}
		}
	}
	if ProfileAggressive.CoverageThreshold(1) >= ProfileConservative.CoverageThreshold(1) {
		t.Errorf("conservative must be stricter than aggressive")
	}
}

// pair builds a region/track with n clean submissions of distinct scores,
// all created at the given time.
func pair(recruit int, applicants *int, n int, created time.Time) Pair {
	p := Pair{
		Region: exam.Region{ID: 1, Name: "Seoul", RecruitPublic: recruit, ApplicantPublic: applicants},
		Track:  exam.TrackPublic,
	}
	for i := 0; i < n; i++ {
		p.Entries = append(p.Entries, exam.PopulationEntry{
			SubmissionID: int64(i + 1), RegionID: 1, Track: exam.TrackPublic,
			FinalScore: 250 - 2.5*float64(i), CreatedAt: created.Unix(),
		})
	}
	return p
}

func TestEvaluate_Gates(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-2 * time.Hour)
	s := DefaultSettings()

	cases := []struct {
		name string
		p    Pair
		want Status
	}{
		{"applicants unknown", pair(5, nil, 100, old), StatusMissingApplicantCount},
		{"four of five", pair(5, iptr(40), 4, old), StatusInsufficientSample},
		{"low coverage", pair(100, iptr(400), 8, old), StatusLowParticipation},
		{"fresh inflow", pair(5, iptr(40), 10, now), StatusUnstable},
		{"ready", pair(5, iptr(40), 10, old), StatusReady},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := Evaluate(tc.p, s, 1, now)
			if ev.Status != tc.want {
				t.Fatalf("status %s want %s (%+v)", ev.Status, tc.want, ev)
			}
		})
	}
}

func TestEvaluate_Signals(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	p := pair(5, iptr(40), 10, now.Add(-2*time.Hour))
	// two late arrivals that push the cut up
	p.Entries = append(p.Entries,
		exam.PopulationEntry{SubmissionID: 11, FinalScore: 249, CreatedAt: now.Unix()},
		exam.PopulationEntry{SubmissionID: 12, FinalScore: 248, CreatedAt: now.Unix(), HasCutoff: true},
	)
	ev := Evaluate(p, DefaultSettings(), 1, now)

	if ev.CoverageTarget != 10 || ev.ParticipantCount != 12 || ev.CoverageRate != 120 {
		t.Fatalf("coverage: %+v", ev)
	}
	// possible band ends at rank 10 of the clean population
	if *ev.Signals.HistoricalCut != 227.5 || *ev.Signals.CurrentCut != 230 {
		t.Fatalf("cuts: hist=%v cur=%v", *ev.Signals.HistoricalCut, *ev.Signals.CurrentCut)
	}
	if ev.Signals.InflowRatePct != 20 || ev.Signals.TieRatePct != 9.09 {
		t.Fatalf("signals: %+v", ev.Signals)
	}
	if *ev.SureCut != 242.5 || *ev.LikelyCut != 235 {
		t.Fatalf("band cuts: sure=%v likely=%v", *ev.SureCut, *ev.LikelyCut)
	}
}

func TestMergeSettings(t *testing.T) {
	s := Merge(DefaultSettings(), map[string]string{
		KeyEnabled:          "false",
		KeyThresholdProfile: "conservative",
		KeyTriggerMode:      "sometimes",
		KeyCheckInterval:    "10",
		"unrelated":         "x",
	})
	if s.Enabled || s.ThresholdProfile != ProfileConservative {
		t.Fatalf("merged: %+v", s)
	}
	if s.Mode != ModeHybrid {
		t.Fatalf("invalid mode should fall back, got %s", s.Mode)
	}
	if s.CheckInterval != MinCheckInterval {
		t.Fatalf("interval %v below minimum", s.CheckInterval)
	}
	round := Merge(DefaultSettings(), s.Map())
	if round != s {
		t.Fatalf("map round trip: %+v != %+v", round, s)
	}
}

func TestFromConfig(t *testing.T) {
	t.Setenv("RELEASE_ENABLED", "false")
	t.Setenv("RELEASE_THRESHOLD_PROFILE", "AGGRESSIVE")
	t.Setenv("RELEASE_TRIGGER_MODE", "CRON_ONLY")
	t.Setenv("RELEASE_CHECK_INTERVAL", "120")
	t.Setenv("RELEASE_AUTO_NOTICE", "no")

	s := FromConfig(config.FromEnv())
	want := Settings{
		Enabled:           false,
		ThresholdProfile:  ProfileAggressive,
		ReadyRatioProfile: ProfileBalanced,
		Mode:              ModeCronOnly,
		CheckInterval:     2 * time.Minute,
		AutoNotice:        false,
	}
	if s != want {
		t.Fatalf("settings from env: %+v", s)
	}
}
