package rescore

import (
	"context"
	"fmt"

	"github.com/mind-engage/mindengage-passcut/internal/exam"
	"github.com/mind-engage/mindengage-passcut/internal/grading"
)

// ChunkError reports a chunk that was rolled back. Chunks up to AfterID are
// committed together with their detail rows; resume with
// Rescore(ctx, examID, EventID, AfterID).
type ChunkError struct {
	EventID string
	AfterID int64
	Err     error
}

func (e *ChunkError) Error() string {
	if e.EventID != "" {
		return fmt.Sprintf("rescore event %s chunk after submission %d: %v", e.EventID, e.AfterID, e.Err)
	}
	return fmt.Sprintf("rescore chunk after submission %d: %v", e.AfterID, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// Change is the score movement of one submission.
type Change struct {
	SubmissionID int64      `json:"submission_id"`
	UserID       string     `json:"user_id"`
	RegionID     int64      `json:"region_id"`
	Track        exam.Track `json:"track"`
	OldTotal     float64    `json:"old_total"`
	NewTotal     float64    `json:"new_total"`
	OldFinal     float64    `json:"old_final"`
	NewFinal     float64    `json:"new_final"`
	OldCutoff    bool       `json:"old_cutoff"`
	NewCutoff    bool       `json:"new_cutoff"`
}

type Outcome struct {
	Processed int
	LastID    int64
	Changes   []Change
}

// Rescore recomputes every submission of the exam with id > afterID,
// BatchSize at a time, each chunk in its own transaction. Only values that
// moved are written back. With a non-empty eventID every change is also
// stored as a RescoreDetail of that event in the same transaction, ranks
// left empty for the Notifier.
func (s *Service) Rescore(ctx context.Context, examID int64, eventID string, afterID int64) (Outcome, error) {
	size := s.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	out := Outcome{LastID: afterID}
	for {
		if err := ctx.Err(); err != nil {
			return out, &ChunkError{EventID: eventID, AfterID: out.LastID, Err: err}
		}
		ids, err := s.Store.SubmissionIDsAfter(ctx, examID, out.LastID, size)
		if err != nil {
			return out, &ChunkError{EventID: eventID, AfterID: out.LastID, Err: err}
		}
		if len(ids) == 0 {
			return out, nil
		}
		var changes []Change
		err = s.Store.RescoreChunk(ctx, func(tx exam.ChunkTx) error {
			var err error
			changes, err = rescoreChunk(ctx, tx, examID, eventID, ids)
			return err
		})
		if err != nil {
			return out, &ChunkError{EventID: eventID, AfterID: out.LastID, Err: err}
		}
		out.Processed += len(ids)
		out.LastID = ids[len(ids)-1]
		out.Changes = append(out.Changes, changes...)
	}
}

func rescoreChunk(ctx context.Context, tx exam.ChunkTx, examID int64, eventID string, ids []int64) ([]Change, error) {
	recs, err := tx.LoadRecords(ctx, ids)
	if err != nil {
		return nil, err
	}
	contexts := map[exam.Track]*grading.Context{}
	var changes []Change
	for _, rec := range recs {
		sub := rec.Submission
		gc, ok := contexts[sub.Track]
		if !ok {
			subjects, err := tx.Subjects(ctx, sub.Track)
			if err != nil {
				return nil, err
			}
			keys, err := tx.AnswerKeys(ctx, examID, sub.Track)
			if err != nil {
				return nil, err
			}
			if gc, err = grading.NewContext(sub.Track, subjects, keys); err != nil {
				return nil, err
			}
			contexts[sub.Track] = gc
		}

		answers := make(map[grading.QuestionKey]int, len(rec.Answers))
		for _, a := range rec.Answers {
			k := grading.QuestionKey{SubjectID: a.SubjectID, Number: a.QuestionNumber}
			answers[k] = a.Selected
			if correct := gc.Correct(k, a.Selected); correct != a.IsCorrect {
				if err := tx.UpdateAnswerCorrectness(ctx, a.ID, correct); err != nil {
					return nil, err
				}
			}
		}
		res, err := gc.Score(answers, sub.BonusRate)
		if err != nil {
			return nil, fmt.Errorf("submission %d: %w", sub.ID, err)
		}

		scores := make([]exam.SubjectScore, 0, len(res.Subjects))
		for _, sr := range res.Subjects {
			scores = append(scores, exam.SubjectScore{SubmissionID: sub.ID, SubjectID: sr.SubjectID, RawScore: sr.RawScore, IsCutoff: sr.IsCutoff})
		}
		if !sameSubjectScores(rec.SubjectScores, scores) {
			if err := tx.ReplaceSubjectScores(ctx, sub.ID, scores); err != nil {
				return nil, err
			}
		}

		if res.TotalScore == sub.TotalScore && res.FinalScore == sub.FinalScore && res.HasCutoff == sub.HasCutoff {
			continue
		}
		changes = append(changes, Change{
			SubmissionID: sub.ID, UserID: sub.UserID, RegionID: sub.RegionID, Track: sub.Track,
			OldTotal: sub.TotalScore, NewTotal: res.TotalScore,
			OldFinal: sub.FinalScore, NewFinal: res.FinalScore,
			OldCutoff: sub.HasCutoff, NewCutoff: res.HasCutoff,
		})
		sub.TotalScore, sub.FinalScore, sub.HasCutoff = res.TotalScore, res.FinalScore, res.HasCutoff
		if err := tx.UpdateSubmissionScore(ctx, sub); err != nil {
			return nil, err
		}
	}
	if eventID != "" && len(changes) > 0 {
		if err := tx.InsertRescoreDetails(ctx, detailRows(eventID, changes)); err != nil {
			return nil, err
		}
	}
	return changes, nil
}

func detailRows(eventID string, changes []Change) []exam.RescoreDetail {
	out := make([]exam.RescoreDetail, 0, len(changes))
	for _, c := range changes {
		out = append(out, exam.RescoreDetail{
			EventID: eventID, SubmissionID: c.SubmissionID, UserID: c.UserID, RegionID: c.RegionID, Track: c.Track,
			OldTotal: c.OldTotal, NewTotal: c.NewTotal, OldFinal: c.OldFinal, NewFinal: c.NewFinal,
			OldCutoff: c.OldCutoff, NewCutoff: c.NewCutoff,
		})
	}
	return out
}

func sameSubjectScores(old, fresh []exam.SubjectScore) bool {
	if len(old) != len(fresh) {
		return false
	}
	prev := make(map[int64]exam.SubjectScore, len(old))
	for _, s := range old {
		prev[s.SubjectID] = s
	}
	for _, s := range fresh {
		p, ok := prev[s.SubjectID]
		if !ok || p.RawScore != s.RawScore || p.IsCutoff != s.IsCutoff {
			return false
		}
	}
	return true
}
