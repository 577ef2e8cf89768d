package ranking_test

import (
	"context"
	"errors"
	"testing"

	"github.com/mind-engage/mindengage-passcut/internal/exam"
	"github.com/mind-engage/mindengage-passcut/internal/exam/examtest"
	"github.com/mind-engage/mindengage-passcut/internal/ranking"
)

func seedRegion(t *testing.T, recruit int) (*examtest.Fixture, map[string]exam.Submission) {
	t.Helper()
	f := examtest.New(t)
	region := f.AddRegion(t, "Seoul", recruit, 0, nil)
	subs := map[string]exam.Submission{}
	for user, correct := range map[string][]int{
		"top":    {20, 40, 40}, // 250
		"second": {20, 40, 38}, // 245
		"cutoff": {0, 40, 40},  // 200, fails Constitution
		"clean":  {20, 30, 30}, // 200
	} {
		subs[user] = f.AddSubmission(t, examtest.Paper{UserID: user, RegionID: region, Correct: correct})
	}
	return f, subs
}

func TestService_RankSubmission(t *testing.T) {
	f, subs := seedRegion(t, 1)
	svc := ranking.NewService(f.Store)
	ctx := context.Background()

	res, err := svc.RankSubmission(ctx, subs["second"].ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Overall.Rank != 2 || res.Overall.TotalParticipants != 3 || res.Overall.Basis != ranking.BasisNonCutoff {
		t.Fatalf("overall: %+v", res.Overall)
	}
	if len(res.Subjects) != 3 {
		t.Fatalf("subjects: %d", len(res.Subjects))
	}
	police := res.Subjects[2]
	if police.RawScore != 95 || police.Rank != 2 {
		t.Fatalf("police science: %+v", police)
	}

	res, err = svc.RankSubmission(ctx, subs["cutoff"].ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Overall.Rank != 3 || res.Overall.TotalParticipants != 4 || res.Overall.Basis != ranking.BasisAll {
		t.Fatalf("cutoff overall: %+v", res.Overall)
	}
}

func TestService_Predict(t *testing.T) {
	f, subs := seedRegion(t, 1)
	svc := ranking.NewService(f.Store)
	ctx := context.Background()

	p, err := svc.Predict(ctx, subs["clean"].ID)
	if err != nil {
		t.Fatal(err)
	}
	if p.Level != ranking.LevelPossible || p.Standing.Rank != 3 || p.Position != 3 {
		t.Fatalf("clean prediction: %+v", p)
	}
	if sure := p.Bands[0]; sure.MinScore == nil || *sure.MinScore != 250 {
		t.Fatalf("sure band: %+v", sure)
	}

	p, err = svc.Predict(ctx, subs["cutoff"].ID)
	if err != nil {
		t.Fatal(err)
	}
	if p.Level != ranking.LevelBelowChallenge {
		t.Fatalf("cutoff prediction: %s", p.Level)
	}

	if _, err := svc.Predict(ctx, 9999); !errors.Is(err, exam.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestService_PredictNonRecruitingRegion(t *testing.T) {
	f, subs := seedRegion(t, 0)
	_, err := ranking.NewService(f.Store).Predict(context.Background(), subs["top"].ID)
	if !errors.Is(err, ranking.ErrNoPopulation) {
		t.Fatalf("want ErrNoPopulation, got %v", err)
	}
}
