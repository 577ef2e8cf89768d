package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// ReplaceAnswerKeys swaps the whole key row set of (exam, track) and records
// the rescore event in the same transaction.
func (s *SQLStore) ReplaceAnswerKeys(ctx context.Context, examID int64, t Track, keys []AnswerKey, ev RescoreEvent) error {
	summary, err := json.Marshal(ev.Changes)
	if err != nil {
		return err
	}
	now := s.now().Unix()
	if ev.CreatedAt == 0 {
		ev.CreatedAt = now
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM answer_keys
			WHERE exam_id=$1 AND subject_id IN (SELECT id FROM subjects WHERE track=$2)`,
			examID, string(t)); err != nil {
			return fmt.Errorf("delete keys: %w", err)
		}
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO answer_keys (exam_id, subject_id, question_number, answer, is_confirmed, updated_at)
				VALUES ($1,$2,$3,$4,$5,$6)`,
				examID, k.SubjectID, k.QuestionNumber, k.Answer, k.IsConfirmed, now); err != nil {
				return fmt.Errorf("insert key %d/%d: %w", k.SubjectID, k.QuestionNumber, err)
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rescore_events (id, exam_id, track, reason, summary_json, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			ev.ID, examID, string(t), ev.Reason, string(summary), ev.CreatedAt)
		return err
	})
}

func (s *SQLStore) GetRescoreEvent(ctx context.Context, id string) (RescoreEvent, error) {
	var ev RescoreEvent
	var track, summary string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, exam_id, track, reason, summary_json, created_at FROM rescore_events WHERE id=$1`, id).
		Scan(&ev.ID, &ev.ExamID, &track, &ev.Reason, &summary, &ev.CreatedAt)
	if err != nil {
		return RescoreEvent{}, notFound(err, "rescore event")
	}
	ev.Track = Track(track)
	if err := json.Unmarshal([]byte(summary), &ev.Changes); err != nil {
		return RescoreEvent{}, fmt.Errorf("rescore event %s summary: %w", id, err)
	}
	return ev, nil
}

func (s *SQLStore) CountSubmissions(ctx context.Context, examID int64, t Track) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM submissions WHERE exam_id=$1 AND track=$2`, examID, string(t)).Scan(&n)
	return n, err
}

// AnswersForQuestions returns the stored answers of every submission of
// (exam, track) to the given questions.
func (s *SQLStore) AnswersForQuestions(ctx context.Context, examID int64, t Track, qs []QuestionRef) ([]UserAnswer, error) {
	if len(qs) == 0 {
		return nil, nil
	}
	want := make(map[QuestionRef]bool, len(qs))
	subjectSet := map[int64]bool{}
	args := []any{examID, string(t)}
	for _, q := range qs {
		want[q] = true
		if !subjectSet[q.SubjectID] {
			subjectSet[q.SubjectID] = true
			args = append(args, q.SubjectID)
		}
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ua.id, ua.submission_id, ua.subject_id, ua.question_number, ua.selected, ua.is_correct
		FROM user_answers ua JOIN submissions sub ON sub.id = ua.submission_id
		WHERE sub.exam_id=$1 AND sub.track=$2 AND ua.subject_id IN (`+placeholders(3, len(args)-2)+`)
		ORDER BY ua.submission_id, ua.subject_id, ua.question_number`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UserAnswer
	for rows.Next() {
		var a UserAnswer
		if err := rows.Scan(&a.ID, &a.SubmissionID, &a.SubjectID, &a.QuestionNumber, &a.Selected, &a.IsCorrect); err != nil {
			return nil, err
		}
		if want[QuestionRef{SubjectID: a.SubjectID, Number: a.QuestionNumber}] {
			out = append(out, a)
		}
	}
	return out, rows.Err()
}

// SubmissionIDsAfter lists up to limit submission ids of the exam greater
// than afterID, ascending.
func (s *SQLStore) SubmissionIDsAfter(ctx context.Context, examID, afterID int64, limit int) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM submissions WHERE exam_id=$1 AND id>$2 ORDER BY id LIMIT $3`, examID, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// RescoreChunk runs fn inside one transaction.
func (s *SQLStore) RescoreChunk(ctx context.Context, fn func(ChunkTx) error) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return fn(&chunkTx{tx: tx, now: s.now().Unix()})
	})
}

type chunkTx struct {
	tx  *sql.Tx
	now int64
}

func (c *chunkTx) Subjects(ctx context.Context, t Track) ([]Subject, error) {
	return subjects(ctx, c.tx, t)
}

func (c *chunkTx) AnswerKeys(ctx context.Context, examID int64, t Track) ([]AnswerKey, error) {
	return answerKeys(ctx, c.tx, examID, t)
}

func (c *chunkTx) LoadRecords(ctx context.Context, ids []int64) ([]SubmissionRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	in := placeholders(1, len(ids))

	rows, err := c.tx.QueryContext(ctx, `SELECT `+submissionCols+` FROM submissions WHERE id IN (`+in+`) ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	var recs []SubmissionRecord
	index := map[int64]int{}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[sub.ID] = len(recs)
		recs = append(recs, SubmissionRecord{Submission: sub})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = c.tx.QueryContext(ctx, `
		SELECT id, submission_id, subject_id, question_number, selected, is_correct
		FROM user_answers WHERE submission_id IN (`+in+`)
		ORDER BY submission_id, subject_id, question_number`, args...)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var a UserAnswer
		if err := rows.Scan(&a.ID, &a.SubmissionID, &a.SubjectID, &a.QuestionNumber, &a.Selected, &a.IsCorrect); err != nil {
			rows.Close()
			return nil, err
		}
		if i, ok := index[a.SubmissionID]; ok {
			recs[i].Answers = append(recs[i].Answers, a)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = c.tx.QueryContext(ctx, `
		SELECT submission_id, subject_id, raw_score, is_cutoff
		FROM subject_scores WHERE submission_id IN (`+in+`)
		ORDER BY submission_id, subject_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var sc SubjectScore
		if err := rows.Scan(&sc.SubmissionID, &sc.SubjectID, &sc.RawScore, &sc.IsCutoff); err != nil {
			return nil, err
		}
		if i, ok := index[sc.SubmissionID]; ok {
			recs[i].SubjectScores = append(recs[i].SubjectScores, sc)
		}
	}
	return recs, rows.Err()
}

func (c *chunkTx) UpdateSubmissionScore(ctx context.Context, sub Submission) error {
	_, err := c.tx.ExecContext(ctx, `
		UPDATE submissions SET total_score=$1, final_score=$2, has_cutoff=$3, updated_at=$4 WHERE id=$5`,
		sub.TotalScore, sub.FinalScore, sub.HasCutoff, c.now, sub.ID)
	return err
}

func (c *chunkTx) UpdateAnswerCorrectness(ctx context.Context, answerID int64, correct bool) error {
	_, err := c.tx.ExecContext(ctx,
		`UPDATE user_answers SET is_correct=$1, updated_at=$2 WHERE id=$3`, correct, c.now, answerID)
	return err
}

// ReplaceSubjectScores deletes and recreates the subject score rows.
func (c *chunkTx) ReplaceSubjectScores(ctx context.Context, submissionID int64, scores []SubjectScore) error {
	if _, err := c.tx.ExecContext(ctx, `DELETE FROM subject_scores WHERE submission_id=$1`, submissionID); err != nil {
		return err
	}
	return insertSubjectScores(ctx, c.tx, submissionID, scores, c.now)
}

/* ---------------- rescore details ---------------- */

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

// InsertRescoreDetails writes detail rows inside the chunk transaction. A
// submission already recorded for the event is left alone.
func (c *chunkTx) InsertRescoreDetails(ctx context.Context, details []RescoreDetail) error {
	for _, d := range details {
		if _, err := c.tx.ExecContext(ctx, `
			INSERT INTO rescore_details (event_id, submission_id, user_id, region_id, track, old_total, new_total,
				old_final, new_final, old_cutoff, new_cutoff, old_rank, new_rank, is_read, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
			ON CONFLICT (event_id, submission_id) DO NOTHING`,
			d.EventID, d.SubmissionID, d.UserID, d.RegionID, string(d.Track), d.OldTotal, d.NewTotal,
			d.OldFinal, d.NewFinal, d.OldCutoff, d.NewCutoff, nullInt(d.OldRank), nullInt(d.NewRank), false, c.now); err != nil {
			return fmt.Errorf("rescore detail %d: %w", d.SubmissionID, err)
		}
	}
	return nil
}

const detailColumns = `id, event_id, submission_id, user_id, region_id, track, old_total, new_total,
	old_final, new_final, old_cutoff, new_cutoff, old_rank, new_rank, is_read`

func scanDetails(rows *sql.Rows) ([]RescoreDetail, error) {
	defer rows.Close()
	var out []RescoreDetail
	for rows.Next() {
		var d RescoreDetail
		var track string
		var oldRank, newRank sql.NullInt64
		if err := rows.Scan(&d.ID, &d.EventID, &d.SubmissionID, &d.UserID, &d.RegionID, &track, &d.OldTotal, &d.NewTotal,
			&d.OldFinal, &d.NewFinal, &d.OldCutoff, &d.NewCutoff, &oldRank, &newRank, &d.IsRead); err != nil {
			return nil, err
		}
		d.Track = Track(track)
		d.OldRank, d.NewRank = intPtr(oldRank), intPtr(newRank)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLStore) RescoreDetails(ctx context.Context, eventID string) ([]RescoreDetail, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+detailColumns+` FROM rescore_details WHERE event_id=$1 ORDER BY submission_id`, eventID)
	if err != nil {
		return nil, err
	}
	return scanDetails(rows)
}

// UserRescoreDetails lists the user's detail rows, unread first, newest first.
func (s *SQLStore) UserRescoreDetails(ctx context.Context, userID string) ([]RescoreDetail, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+detailColumns+` FROM rescore_details WHERE user_id=$1 ORDER BY is_read, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	return scanDetails(rows)
}

// SetRescoreDetailRanks stores the old and new ranks of each detail by id.
func (s *SQLStore) SetRescoreDetailRanks(ctx context.Context, details []RescoreDetail) error {
	if len(details) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, d := range details {
			if _, err := tx.ExecContext(ctx, `UPDATE rescore_details SET old_rank=$1, new_rank=$2 WHERE id=$3`,
				nullInt(d.OldRank), nullInt(d.NewRank), d.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkRescoreDetailsRead flags every unread detail of the user as read.
func (s *SQLStore) MarkRescoreDetailsRead(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE rescore_details SET is_read=$1 WHERE user_id=$2 AND is_read=$3`, true, userID, false)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
