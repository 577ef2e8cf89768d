package rescore

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-passcut/internal/exam"
	"github.com/mind-engage/mindengage-passcut/internal/grading"
	syncx "github.com/mind-engage/mindengage-passcut/internal/sync"
)

const DefaultBatchSize = 100

type Store interface {
	Subjects(ctx context.Context, t exam.Track) ([]exam.Subject, error)
	AnswerKeys(ctx context.Context, examID int64, t exam.Track) ([]exam.AnswerKey, error)
	ReplaceAnswerKeys(ctx context.Context, examID int64, t exam.Track, keys []exam.AnswerKey, ev exam.RescoreEvent) error
	CountSubmissions(ctx context.Context, examID int64, t exam.Track) (int, error)
	AnswersForQuestions(ctx context.Context, examID int64, t exam.Track, qs []exam.QuestionRef) ([]exam.UserAnswer, error)
	SubmissionIDsAfter(ctx context.Context, examID, afterID int64, limit int) ([]int64, error)
	RescoreChunk(ctx context.Context, fn func(exam.ChunkTx) error) error
}

// Recorder receives the audit event of a committed correction.
type Recorder interface {
	Record(ctx context.Context, typ, key string, data any) error
}

type Service struct {
	Store     Store
	BatchSize int
	Notifier  *Notifier // optional; fills detail ranks after a run
	Events    Recorder  // optional
}

func NewService(st Store) *Service {
	return &Service{Store: st, BatchSize: DefaultBatchSize}
}

// Request is an answer-key correction for one (exam, track).
type Request struct {
	ExamID      int64      `json:"exam_id"`
	Track       exam.Track `json:"track"`
	IsConfirmed bool       `json:"is_confirmed"`
	Reason      string     `json:"reason"`
	Rows        []Row      `json:"rows"`
}

type ScoreChanges struct {
	Increased int `json:"increased"`
	Decreased int `json:"decreased"`
	Unchanged int `json:"unchanged"`
}

type PreviewResult struct {
	ChangedQuestions    []exam.ChangedQuestion `json:"changed_questions"`
	StatusChangedCount  int                    `json:"status_changed_count"`
	AffectedSubmissions int                    `json:"affected_submissions"`
	ScoreChanges        ScoreChanges           `json:"score_changes"`
}

func (s *Service) prepare(ctx context.Context, req Request) ([]exam.Subject, []exam.AnswerKey, []exam.ChangedQuestion, error) {
	subjects, err := s.Store.Subjects(ctx, req.Track)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := grading.ValidateSubjects(req.Track, subjects); err != nil {
		return nil, nil, nil, err
	}
	keys, err := ValidateRows(subjects, req.Rows, req.ExamID, req.IsConfirmed)
	if err != nil {
		return nil, nil, nil, err
	}
	old, err := s.Store.AnswerKeys(ctx, req.ExamID, req.Track)
	if err != nil {
		return nil, nil, nil, err
	}
	return subjects, keys, diffKeys(subjects, old, keys), nil
}

// Preview reports what committing req would change without writing. Only
// the changed questions are simulated, so it assumes the subject
// configuration does not move between preview and commit.
func (s *Service) Preview(ctx context.Context, req Request) (PreviewResult, error) {
	subjects, _, changes, err := s.prepare(ctx, req)
	if err != nil {
		return PreviewResult{}, err
	}
	total, err := s.Store.CountSubmissions(ctx, req.ExamID, req.Track)
	if err != nil {
		return PreviewResult{}, err
	}
	res := PreviewResult{ChangedQuestions: changes}
	if len(changes) == 0 {
		res.ScoreChanges.Unchanged = total
		return res, nil
	}

	points := make(map[int64]float64, len(subjects))
	for _, sub := range subjects {
		points[sub.ID] = sub.PointPerQuestion
	}
	byRef := make(map[exam.QuestionRef]exam.ChangedQuestion, len(changes))
	refs := make([]exam.QuestionRef, 0, len(changes))
	for _, c := range changes {
		ref := exam.QuestionRef{SubjectID: c.SubjectID, Number: c.QuestionNumber}
		byRef[ref] = c
		refs = append(refs, ref)
	}
	answers, err := s.Store.AnswersForQuestions(ctx, req.ExamID, req.Track, refs)
	if err != nil {
		return PreviewResult{}, err
	}

	delta := map[int64]float64{}
	for _, a := range answers {
		c := byRef[exam.QuestionRef{SubjectID: a.SubjectID, Number: a.QuestionNumber}]
		was := a.Selected != 0 && a.Selected == c.OldAnswer
		now := a.Selected != 0 && a.Selected == c.NewAnswer
		if was == now {
			continue
		}
		res.StatusChangedCount++
		d := delta[a.SubmissionID]
		if now {
			d += points[a.SubjectID]
		} else {
			d -= points[a.SubjectID]
		}
		delta[a.SubmissionID] = grading.Round2(d)
	}
	res.AffectedSubmissions = len(delta)
	for _, d := range delta {
		switch {
		case d > 0:
			res.ScoreChanges.Increased++
		case d < 0:
			res.ScoreChanges.Decreased++
		}
	}
	res.ScoreChanges.Unchanged = total - res.ScoreChanges.Increased - res.ScoreChanges.Decreased
	return res, nil
}

type CommitResult struct {
	EventID          string                 `json:"event_id"`
	ChangedQuestions []exam.ChangedQuestion `json:"changed_questions"`
	Processed        int                    `json:"processed"`
	Rescored         int                    `json:"rescored"`
	DetailsRanked    int                    `json:"details_ranked"`
}

// Commit swaps the key of (exam, track), records the event and rescores
// every submission of the exam. Every track with submissions must be
// scoreable under the new keys before anything is written. Detail rows are
// written with each chunk; when rescoring fails part way the key stays
// committed and the returned *ChunkError carries the event and the resume
// point for Resume.
func (s *Service) Commit(ctx context.Context, req Request) (CommitResult, error) {
	subjects, keys, changes, err := s.prepare(ctx, req)
	if err != nil {
		return CommitResult{}, err
	}
	if err := s.checkScoreable(ctx, req, subjects, keys); err != nil {
		return CommitResult{}, err
	}
	ev := exam.RescoreEvent{
		ID:      uuid.NewString(),
		ExamID:  req.ExamID,
		Track:   req.Track,
		Reason:  req.Reason,
		Changes: changes,
	}
	if err := s.Store.ReplaceAnswerKeys(ctx, req.ExamID, req.Track, keys, ev); err != nil {
		return CommitResult{}, fmt.Errorf("replace answer keys: %w", err)
	}
	res := CommitResult{EventID: ev.ID, ChangedQuestions: changes}

	out, err := s.Resume(ctx, req.ExamID, ev.ID, 0)
	res.Processed, res.Rescored, res.DetailsRanked = out.Processed, len(out.Changes), out.DetailsRanked
	if err != nil {
		return res, err
	}
	log.Printf("[rescore] exam=%d track=%s event=%s changed_questions=%d rescored=%d/%d",
		req.ExamID, req.Track, ev.ID, len(changes), res.Rescored, res.Processed)

	if s.Events != nil {
		if err := s.Events.Record(ctx, syncx.TypeRescoreCommitted, ev.ID, res); err != nil {
			log.Printf("[rescore] event log: %v", err)
		}
	}
	return res, nil
}

// ResumeOutcome is a rescore run followed by the rank fill of its event.
type ResumeOutcome struct {
	Outcome
	DetailsRanked int
}

// Resume rescores after afterID under eventID, then fills the ranks of
// every detail row of the event when a Notifier is set. It is the
// continuation of a Commit that returned a *ChunkError, and is safe to run
// again for an event that already finished.
func (s *Service) Resume(ctx context.Context, examID int64, eventID string, afterID int64) (ResumeOutcome, error) {
	out, err := s.Rescore(ctx, examID, eventID, afterID)
	res := ResumeOutcome{Outcome: out}
	if err != nil {
		return res, err
	}
	if s.Notifier != nil && eventID != "" {
		n, err := s.Notifier.Rank(ctx, examID, eventID)
		if err != nil {
			return res, fmt.Errorf("rank rescore details: %w", err)
		}
		res.DetailsRanked = n
	}
	return res, nil
}

// checkScoreable builds a grading context for every track that has
// submissions, using the proposed keys for req.Track and the stored keys
// for the others.
func (s *Service) checkScoreable(ctx context.Context, req Request, subjects []exam.Subject, keys []exam.AnswerKey) error {
	for _, t := range exam.Tracks {
		n, err := s.Store.CountSubmissions(ctx, req.ExamID, t)
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}
		subs, ks := subjects, keys
		if t != req.Track {
			if subs, err = s.Store.Subjects(ctx, t); err != nil {
				return err
			}
			if ks, err = s.Store.AnswerKeys(ctx, req.ExamID, t); err != nil {
				return err
			}
		}
		if _, err := grading.NewContext(t, subs, ks); err != nil {
			return fmt.Errorf("track %s: %w", t, err)
		}
	}
	return nil
}
