package rescore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/mind-engage/mindengage-passcut/internal/exam"
	"github.com/mind-engage/mindengage-passcut/internal/exam/examtest"
	"github.com/mind-engage/mindengage-passcut/internal/grading"
	"github.com/mind-engage/mindengage-passcut/internal/rescore"
	syncx "github.com/mind-engage/mindengage-passcut/internal/sync"
)

func rowsFor(f *examtest.Fixture, t exam.Track) []rescore.Row {
	var rows []rescore.Row
	for _, k := range f.Key(t) {
		rows = append(rows, rescore.Row{SubjectID: k.SubjectID, QuestionNumber: k.QuestionNumber, Answer: k.Answer})
	}
	return rows
}

// correctedRows moves Constitution question 20 to the choice every
// seeded wrong paper picked.
func correctedRows(f *examtest.Fixture) []rescore.Row {
	rows := rowsFor(f, exam.TrackPublic)
	for i := range rows {
		if rows[i].SubjectID == f.Subjects[exam.TrackPublic][0].ID && rows[i].QuestionNumber == 20 {
			rows[i].Answer = examtest.WrongAnswer(20)
		}
	}
	return rows
}

func TestValidateRows(t *testing.T) {
	f := examtest.New(t)
	subjects := f.Subjects[exam.TrackPublic]

	keys, err := rescore.ValidateRows(subjects, rowsFor(f, exam.TrackPublic), f.ExamID, true)
	if err != nil || len(keys) != 100 {
		t.Fatalf("valid rows: %d %v", len(keys), err)
	}

	byName := rowsFor(f, exam.TrackPublic)
	for i := range byName {
		byName[i].SubjectName = nameOf(subjects, byName[i].SubjectID)
		byName[i].SubjectID = 0
	}
	if _, err := rescore.ValidateRows(subjects, byName, f.ExamID, true); err != nil {
		t.Fatalf("rows by name: %v", err)
	}

	cases := []struct {
		name     string
		mutate   func([]rescore.Row) []rescore.Row
		question int
	}{
		{"answer out of range", func(r []rescore.Row) []rescore.Row { r[3].Answer = 5; return r }, 4},
		{"question out of range", func(r []rescore.Row) []rescore.Row { r[3].QuestionNumber = 21; return r }, 21},
		{"duplicate", func(r []rescore.Row) []rescore.Row { return append(r, r[0]) }, 1},
		{"gap", func(r []rescore.Row) []rescore.Row { return append(r[:5], r[6:]...) }, 6},
		{"career subject", func(r []rescore.Row) []rescore.Row {
			r[0].SubjectID, r[0].SubjectName = 0, "Criminology"
			return r
		}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := rescore.ValidateRows(subjects, tc.mutate(rowsFor(f, exam.TrackPublic)), f.ExamID, true)
			var ve *rescore.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("want ValidationError, got %v", err)
			}
			if ve.Question != tc.question {
				t.Fatalf("error points at question %d, want %d (%v)", ve.Question, tc.question, ve)
			}
		})
	}
}

func nameOf(subjects []exam.Subject, id int64) string {
	for _, s := range subjects {
		if s.ID == id {
			return s.Name
		}
	}
	return ""
}

func TestCorrection_EndToEnd(t *testing.T) {
	f := examtest.New(t)
	ctx := context.Background()
	region := f.AddRegion(t, "Seoul", 10, 10, nil)
	a := f.AddSubmission(t, examtest.Paper{UserID: "a", RegionID: region, Correct: []int{19, 40, 40}}) // 247.5
	b := f.AddSubmission(t, examtest.Paper{UserID: "b", RegionID: region, Correct: []int{20, 40, 40}}) // 250
	f.AddSubmission(t, examtest.Paper{UserID: "c", RegionID: region, Track: exam.TrackCareer, Correct: []int{19, 40, 40}})

	events := syncx.NewEventRepo(f.Store.DB(), "")
	svc := rescore.NewService(f.Store)
	svc.Notifier = rescore.NewNotifier(f.Store)
	svc.Events = events

	req := rescore.Request{ExamID: f.ExamID, Track: exam.TrackPublic, IsConfirmed: true, Reason: "q20 correction", Rows: correctedRows(f)}
	pv, err := svc.Preview(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if len(pv.ChangedQuestions) != 1 || pv.ChangedQuestions[0].OldAnswer != examtest.CorrectAnswer(20) {
		t.Fatalf("changed questions: %+v", pv.ChangedQuestions)
	}
	if pv.StatusChangedCount != 2 || pv.AffectedSubmissions != 2 {
		t.Fatalf("preview counts: %+v", pv)
	}
	if pv.ScoreChanges != (rescore.ScoreChanges{Increased: 1, Decreased: 1, Unchanged: 0}) {
		t.Fatalf("score changes: %+v", pv.ScoreChanges)
	}

	res, err := svc.Commit(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 3 || res.Rescored != 2 || res.DetailsRanked != 2 {
		t.Fatalf("commit: %+v", res)
	}
	gotA, _ := f.Store.GetSubmission(ctx, a.ID)
	if gotA.TotalScore != 250 || gotA.FinalScore != 250 {
		t.Fatalf("a after correction: %+v", gotA)
	}
	scores, _ := f.Store.SubjectScores(ctx, a.ID)
	if scores[0].RawScore != 50 {
		t.Fatalf("a constitution score: %+v", scores[0])
	}

	details, err := f.Store.RescoreDetails(ctx, res.EventID)
	if err != nil || len(details) != 2 {
		t.Fatalf("details: %+v %v", details, err)
	}
	for _, d := range details {
		switch d.SubmissionID {
		case a.ID:
			if *d.OldRank != 2 || *d.NewRank != 1 || d.NewFinal-d.OldFinal != 2.5 {
				t.Errorf("a detail: %+v", d)
			}
		case b.ID:
			if *d.OldRank != 1 || *d.NewRank != 2 || d.IsRead {
				t.Errorf("b detail: %+v", d)
			}
		}
	}

	// the same rows again change nothing
	again, err := svc.Commit(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if again.Rescored != 0 || len(again.ChangedQuestions) != 0 {
		t.Fatalf("second commit: %+v", again)
	}
	pv, _ = svc.Preview(ctx, req)
	if pv.ScoreChanges != (rescore.ScoreChanges{Unchanged: 2}) {
		t.Fatalf("preview after commit: %+v", pv.ScoreChanges)
	}

	logged, err := events.Since(ctx, 0, 10)
	if err != nil || len(logged) != 2 || logged[0].Type != syncx.TypeRescoreCommitted || logged[0].Key != res.EventID {
		t.Fatalf("event log: %+v %v", logged, err)
	}
}

func TestCorrection_SingleQuestionFlip(t *testing.T) {
	f := examtest.New(t)
	ctx := context.Background()
	region := f.AddRegion(t, "Busan", 5, 5, nil)
	a := f.AddSubmission(t, examtest.Paper{UserID: "a", RegionID: region, Correct: []int{19, 40, 40}})

	svc := rescore.NewService(f.Store)
	req := rescore.Request{ExamID: f.ExamID, Track: exam.TrackPublic, IsConfirmed: true, Rows: correctedRows(f)}
	pv, err := svc.Preview(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if pv.ScoreChanges.Increased != 1 || pv.ScoreChanges.Decreased != 0 {
		t.Fatalf("preview: %+v", pv.ScoreChanges)
	}
	if _, err := svc.Commit(ctx, req); err != nil {
		t.Fatal(err)
	}
	got, _ := f.Store.GetSubmission(ctx, a.ID)
	if got.FinalScore-a.FinalScore != 2.5 {
		t.Fatalf("want +2.5, got %v -> %v", a.FinalScore, got.FinalScore)
	}
}

// flakyStore fails the n-th chunk transaction.
type flakyStore struct {
	*exam.SQLStore
	failOn int
	calls  int
}

func (s *flakyStore) RescoreChunk(ctx context.Context, fn func(exam.ChunkTx) error) error {
	s.calls++
	if s.calls == s.failOn {
		return s.SQLStore.RescoreChunk(ctx, func(tx exam.ChunkTx) error {
			if err := fn(tx); err != nil {
				return err
			}
			return errors.New("disk full")
		})
	}
	return s.SQLStore.RescoreChunk(ctx, fn)
}

func TestRescore_ChunkFailureIsResumable(t *testing.T) {
	f := examtest.New(t)
	ctx := context.Background()
	region := f.AddRegion(t, "Daegu", 5, 5, nil)
	a := f.AddSubmission(t, examtest.Paper{UserID: "a", RegionID: region, Correct: []int{19, 40, 40}})
	b := f.AddSubmission(t, examtest.Paper{UserID: "b", RegionID: region, Correct: []int{18, 40, 40}})

	svc := rescore.NewService(&flakyStore{SQLStore: f.Store, failOn: 2})
	svc.BatchSize = 1
	svc.Notifier = rescore.NewNotifier(f.Store)
	res, err := svc.Commit(ctx, rescore.Request{ExamID: f.ExamID, Track: exam.TrackPublic, IsConfirmed: true, Rows: correctedRows(f)})
	var ce *rescore.ChunkError
	if !errors.As(err, &ce) || ce.AfterID != a.ID || ce.EventID != res.EventID || res.EventID == "" {
		t.Fatalf("want ChunkError after %d for %q, got %v", a.ID, res.EventID, err)
	}

	gotA, _ := f.Store.GetSubmission(ctx, a.ID)
	gotB, _ := f.Store.GetSubmission(ctx, b.ID)
	if gotA.FinalScore != a.FinalScore+2.5 {
		t.Fatalf("first chunk should be committed: %v", gotA.FinalScore)
	}
	if gotB.FinalScore != b.FinalScore {
		t.Fatalf("failed chunk must roll back: %v", gotB.FinalScore)
	}
	details, err := f.Store.RescoreDetails(ctx, ce.EventID)
	if err != nil || len(details) != 1 || details[0].SubmissionID != a.ID || details[0].OldRank != nil {
		t.Fatalf("committed chunk keeps its detail row: %+v %v", details, err)
	}

	resumer := rescore.NewService(f.Store)
	resumer.Notifier = rescore.NewNotifier(f.Store)
	out, err := resumer.Resume(ctx, f.ExamID, ce.EventID, ce.AfterID)
	if err != nil || out.Processed != 1 || len(out.Changes) != 1 || out.DetailsRanked != 2 {
		t.Fatalf("resume: %+v %v", out, err)
	}
	gotB, _ = f.Store.GetSubmission(ctx, b.ID)
	if gotB.FinalScore != b.FinalScore+2.5 {
		t.Fatalf("resumed chunk: %v", gotB.FinalScore)
	}

	// running it again changes nothing and keeps one row per submission
	if _, err := resumer.Resume(ctx, f.ExamID, ce.EventID, ce.AfterID); err != nil {
		t.Fatal(err)
	}
	details, err = f.Store.RescoreDetails(ctx, ce.EventID)
	if err != nil || len(details) != 2 {
		t.Fatalf("details after resume: %+v %v", details, err)
	}
	want := map[int64]int{a.ID: 1, b.ID: 2}
	for _, d := range details {
		if d.OldRank == nil || d.NewRank == nil || *d.OldRank != want[d.SubmissionID] || *d.NewRank != want[d.SubmissionID] {
			t.Errorf("ranks of %d: %v %v", d.SubmissionID, d.OldRank, d.NewRank)
		}
		if d.NewFinal-d.OldFinal != 2.5 || d.RegionID != region || d.Track != exam.TrackPublic {
			t.Errorf("detail %+v", d)
		}
	}
}

func TestCommit_RejectsUnscoreableOtherTrack(t *testing.T) {
	f := examtest.New(t)
	ctx := context.Background()
	region := f.AddRegion(t, "Gwangju", 5, 5, nil)
	a := f.AddSubmission(t, examtest.Paper{UserID: "a", RegionID: region, Correct: []int{19, 40, 40}})
	f.AddSubmission(t, examtest.Paper{UserID: "c", RegionID: region, Track: exam.TrackCareer, Correct: []int{19, 40, 40}})

	cut := f.Key(exam.TrackCareer)[:50]
	if err := f.Store.ReplaceAnswerKeys(ctx, f.ExamID, exam.TrackCareer, cut, exam.RescoreEvent{ID: "career-cut", ExamID: f.ExamID, Track: exam.TrackCareer}); err != nil {
		t.Fatal(err)
	}

	svc := rescore.NewService(f.Store)
	_, err := svc.Commit(ctx, rescore.Request{ExamID: f.ExamID, Track: exam.TrackPublic, IsConfirmed: true, Rows: correctedRows(f)})
	if !errors.Is(err, grading.ErrKeyIncomplete) {
		t.Fatalf("want ErrKeyIncomplete, got %v", err)
	}

	keys, err := f.Store.AnswerKeys(ctx, f.ExamID, exam.TrackPublic)
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range keys {
		if k.SubjectID == f.Subjects[exam.TrackPublic][0].ID && k.QuestionNumber == 20 && k.Answer != examtest.CorrectAnswer(20) {
			t.Fatalf("public key swapped: %+v", k)
		}
	}
	got, _ := f.Store.GetSubmission(ctx, a.ID)
	if got.FinalScore != a.FinalScore {
		t.Fatalf("score moved: %v -> %v", a.FinalScore, got.FinalScore)
	}
}
