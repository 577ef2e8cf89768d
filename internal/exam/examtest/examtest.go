// Package examtest seeds an in-memory sqlite store for package tests.
package examtest

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-passcut/internal/db"
	"github.com/mind-engage/mindengage-passcut/internal/exam"
	"github.com/mind-engage/mindengage-passcut/internal/grading"
)

var seq atomic.Int64

type Fixture struct {
	Store    *exam.SQLStore
	ExamID   int64
	Subjects map[exam.Track][]exam.Subject
}

// CorrectAnswer is the seeded key for question q.
func CorrectAnswer(q int) int { return q%4 + 1 }

// WrongAnswer is a choice that never matches CorrectAnswer(q).
func WrongAnswer(q int) int { return CorrectAnswer(q)%4 + 1 }

// New opens a fresh in-memory database with one active exam, the subjects of
// both tracks, a confirmed answer key and an admin user.
func New(t *testing.T) *Fixture {
	t.Helper()
	ctx := context.Background()
	dsn := fmt.Sprintf("file:passcut_test_%d?mode=memory&cache=shared", seq.Add(1))
	dbh, err := db.Open(ctx, db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = dbh.Close() })

	st := exam.NewSQLStore(dbh, string(db.DriverSQLite))
	f := &Fixture{Store: st, Subjects: map[exam.Track][]exam.Subject{}}

	f.ExamID, err = st.CreateExam(ctx, exam.Exam{Year: 2025, Round: 1, Name: "2025 round 1", IsActive: true})
	if err != nil {
		t.Fatalf("create exam: %v", err)
	}
	for _, tr := range exam.Tracks {
		for i, r := range grading.Rules(tr) {
			sub := exam.Subject{
				Track: tr, Name: r.Name, QuestionCount: r.QuestionCount,
				PointPerQuestion: r.PointPerQuestion, MaxScore: r.MaxScore, Ordinal: i + 1,
			}
			if sub.ID, err = st.CreateSubject(ctx, sub); err != nil {
				t.Fatalf("create subject: %v", err)
			}
			f.Subjects[tr] = append(f.Subjects[tr], sub)
		}
		ev := exam.RescoreEvent{ID: uuid.NewString(), ExamID: f.ExamID, Track: tr, Reason: "seed"}
		if err := st.ReplaceAnswerKeys(ctx, f.ExamID, tr, f.Key(tr), ev); err != nil {
			t.Fatalf("seed keys: %v", err)
		}
	}
	if err := st.PutUser(ctx, exam.User{ID: "admin-1", Username: "admin", Role: exam.RoleAdmin}); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	return f
}

// Key is the full confirmed key of the track.
func (f *Fixture) Key(t exam.Track) []exam.AnswerKey {
	var out []exam.AnswerKey
	for _, s := range f.Subjects[t] {
		for q := 1; q <= s.QuestionCount; q++ {
			out = append(out, exam.AnswerKey{
				ExamID: f.ExamID, SubjectID: s.ID, QuestionNumber: q, Answer: CorrectAnswer(q), IsConfirmed: true,
			})
		}
	}
	return out
}

func (f *Fixture) AddRegion(t *testing.T, name string, recruitPublic, recruitCareer int, applicants *int) int64 {
	t.Helper()
	id, err := f.Store.CreateRegion(context.Background(), exam.Region{
		Name: name, RecruitPublic: recruitPublic, RecruitCareer: recruitCareer,
		ApplicantPublic: applicants, ApplicantCareer: applicants,
	})
	if err != nil {
		t.Fatalf("create region: %v", err)
	}
	return id
}

// Paper describes a submission to seed: Correct[i] is the number of leading
// questions answered correctly in the i-th subject of the track.
type Paper struct {
	UserID    string
	RegionID  int64
	Track     exam.Track
	Correct   []int
	BonusRate float64
	CreatedAt int64
}

// AddSubmission scores p against the seeded key and stores it.
func (f *Fixture) AddSubmission(t *testing.T, p Paper) exam.Submission {
	t.Helper()
	ctx := context.Background()
	if p.Track == "" {
		p.Track = exam.TrackPublic
	}
	subs := f.Subjects[p.Track]
	gc, err := grading.NewContext(p.Track, subs, f.Key(p.Track))
	if err != nil {
		t.Fatalf("grading context: %v", err)
	}
	answers := map[grading.QuestionKey]int{}
	var rows []exam.UserAnswer
	for i, s := range subs {
		n := 0
		if i < len(p.Correct) {
			n = p.Correct[i]
		}
		for q := 1; q <= s.QuestionCount; q++ {
			sel := WrongAnswer(q)
			if q <= n {
				sel = CorrectAnswer(q)
			}
			k := grading.QuestionKey{SubjectID: s.ID, Number: q}
			answers[k] = sel
			rows = append(rows, exam.UserAnswer{
				SubjectID: s.ID, QuestionNumber: q, Selected: sel, IsCorrect: gc.Correct(k, sel),
			})
		}
	}
	res, err := gc.Score(answers, p.BonusRate)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	sub := exam.Submission{
		ExamID: f.ExamID, UserID: p.UserID, RegionID: p.RegionID, Track: p.Track,
		TotalScore: res.TotalScore, BonusType: "NONE", BonusRate: p.BonusRate,
		FinalScore: res.FinalScore, HasCutoff: res.HasCutoff, CreatedAt: p.CreatedAt,
	}
	rec := exam.SubmissionRecord{Submission: sub, Answers: rows}
	for _, sr := range res.Subjects {
		rec.SubjectScores = append(rec.SubjectScores, exam.SubjectScore{
			SubjectID: sr.SubjectID, RawScore: sr.RawScore, IsCutoff: sr.IsCutoff,
		})
	}
	if sub.ID, err = f.Store.InsertSubmission(ctx, rec); err != nil {
		t.Fatalf("insert submission: %v", err)
	}
	return sub
}
