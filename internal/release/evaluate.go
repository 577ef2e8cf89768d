package release

import (
	"time"

	"github.com/mind-engage/mindengage-passcut/internal/exam"
	"github.com/mind-engage/mindengage-passcut/internal/ranking"
)

type Status string

const (
	StatusMissingApplicantCount Status = "COLLECTING_MISSING_APPLICANT_COUNT"
	StatusInsufficientSample    Status = "COLLECTING_INSUFFICIENT_SAMPLE"
	StatusLowParticipation      Status = "COLLECTING_LOW_PARTICIPATION"
	StatusUnstable              Status = "COLLECTING_UNSTABLE"
	StatusReady                 Status = "READY"
)

// lookback is how far back the historical cut and the inflow window reach.
const lookback = time.Hour

// Pair is one eligible (region, track) with its submissions.
type Pair struct {
	Region  exam.Region
	Track   exam.Track
	Entries []exam.PopulationEntry
}

type Evaluation struct {
	RegionID          int64      `json:"region_id"`
	RegionName        string     `json:"region_name"`
	Track             exam.Track `json:"track"`
	Status            Status     `json:"status"`
	ParticipantCount  int        `json:"participant_count"`
	RecruitCount      int        `json:"recruit_count"`
	PassMultiple      float64    `json:"pass_multiple"`
	CoverageTarget    float64    `json:"coverage_target"`
	CoverageRate      float64    `json:"coverage_rate"`
	CoverageThreshold float64    `json:"coverage_threshold"`
	Signals           Signals    `json:"signals"`
	Stability         Stability  `json:"stability"`
	StabilityRequired float64    `json:"stability_threshold"`
	AverageScore      float64    `json:"average_score"`
	SureCut           *float64   `json:"sure_cut,omitempty"`
	LikelyCut         *float64   `json:"likely_cut,omitempty"`
	PossibleCut       *float64   `json:"possible_cut,omitempty"`
}

func cutOf(d ranking.Distribution, threshold int) *float64 {
	if v, ok := d.Cut(threshold); ok {
		return &v
	}
	return nil
}

func scoresOf(entries []exam.PopulationEntry) []float64 {
	out := make([]float64, len(entries))
	for i, e := range entries {
		out[i] = e.FinalScore
	}
	return out
}

// Evaluate computes the readiness of one pair for the given release number.
// Gates apply in order and the first one that fails decides the status.
func Evaluate(p Pair, s Settings, releaseNumber int, now time.Time) Evaluation {
	recruit := p.Region.RecruitCount(p.Track)
	ev := Evaluation{
		RegionID:          p.Region.ID,
		RegionName:        p.Region.Name,
		Track:             p.Track,
		ParticipantCount:  len(p.Entries),
		RecruitCount:      recruit,
		CoverageThreshold: s.ThresholdProfile.CoverageThreshold(releaseNumber),
		StabilityRequired: s.ThresholdProfile.StabilityThreshold(releaseNumber),
	}
	th, ok := ranking.BandThresholds(recruit)
	if ok {
		ev.PassMultiple = th.PassMultiple
		ev.CoverageTarget = round2(float64(recruit) * th.PassMultiple)
		ev.CoverageRate = round2(float64(ev.ParticipantCount) / ev.CoverageTarget * 100)
	}

	cutoffAt := now.Add(-lookback).Unix()
	clean, _ := ranking.SelectPopulation(p.Entries, false)
	var older []exam.PopulationEntry
	recent := 0
	for _, e := range clean {
		if e.CreatedAt <= cutoffAt {
			older = append(older, e)
		}
	}
	for _, e := range p.Entries {
		if e.CreatedAt > cutoffAt {
			recent++
		}
	}

	all := ranking.NewDistribution(scoresOf(p.Entries))
	dist := ranking.NewDistribution(scoresOf(clean))
	ev.AverageScore = all.Average()
	if ok {
		ev.SureCut = cutOf(dist, th.Sure)
		ev.LikelyCut = cutOf(dist, th.Likely)
		ev.PossibleCut = cutOf(dist, th.Possible)
		ev.Signals.CurrentCut = ev.PossibleCut
		ev.Signals.HistoricalCut = cutOf(ranking.NewDistribution(scoresOf(older)), th.Possible)
		ev.Signals.InflowRatePct = round2(float64(recent) / ev.CoverageTarget * 100)
	}
	if ev.Signals.CurrentCut != nil && dist.Total() > 0 {
		ev.Signals.TieRatePct = round2(float64(dist.CountAt(*ev.Signals.CurrentCut)) / float64(dist.Total()) * 100)
	}
	ev.Stability = StabilityScore(ev.Signals)

	_, applicantsKnown := p.Region.ApplicantCount(p.Track)
	switch {
	case !applicantsKnown:
		ev.Status = StatusMissingApplicantCount
	case ev.ParticipantCount < s.ThresholdProfile.MinSample():
		ev.Status = StatusInsufficientSample
	case ev.CoverageRate < ev.CoverageThreshold:
		ev.Status = StatusLowParticipation
	case ev.Stability.Score < ev.StabilityRequired:
		ev.Status = StatusUnstable
	default:
		ev.Status = StatusReady
	}
	return ev
}

// Snapshot is the row published for this pair.
func (ev Evaluation) Snapshot(releaseID string) exam.PassCutSnapshot {
	return exam.PassCutSnapshot{
		ReleaseID:        releaseID,
		RegionID:         ev.RegionID,
		Track:            ev.Track,
		ParticipantCount: ev.ParticipantCount,
		RecruitCount:     ev.RecruitCount,
		AverageScore:     ev.AverageScore,
		SureCut:          ev.SureCut,
		LikelyCut:        ev.LikelyCut,
		PossibleCut:      ev.PossibleCut,
		Status:           string(ev.Status),
	}
}
