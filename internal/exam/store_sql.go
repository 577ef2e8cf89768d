package exam

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-passcut/internal/db"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
	now    func() time.Time
}

func NewSQLStore(dbh *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: dbh, driver: driver, now: time.Now}
}

// WithClock overrides the timestamp source (tests).
func (s *SQLStore) WithClock(now func() time.Time) *SQLStore {
	s.now = now
	return s
}

func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return db.WithTx(ctx, s.db, nil, fn)
}

// placeholders renders "$start,$start+1,...", n entries.
func placeholders(start, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "$%d", start+i)
	}
	return b.String()
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

/* ---------------- reference data ---------------- */

func (s *SQLStore) ActiveExam(ctx context.Context) (Exam, error) {
	var e Exam
	err := s.db.QueryRowContext(ctx,
		`SELECT id, year, round, name, is_active FROM exams WHERE is_active=$1 ORDER BY id DESC LIMIT 1`, true).
		Scan(&e.ID, &e.Year, &e.Round, &e.Name, &e.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return Exam{}, ErrNoActiveExam
	}
	return e, err
}

func (s *SQLStore) GetExam(ctx context.Context, id int64) (Exam, error) {
	var e Exam
	err := s.db.QueryRowContext(ctx,
		`SELECT id, year, round, name, is_active FROM exams WHERE id=$1`, id).
		Scan(&e.ID, &e.Year, &e.Round, &e.Name, &e.IsActive)
	if err != nil {
		return Exam{}, notFound(err, "exam")
	}
	return e, nil
}

const regionCols = `id, name, recruit_public, recruit_career, applicant_public, applicant_career`

func scanRegion(sc interface{ Scan(...any) error }) (Region, error) {
	var r Region
	var ap, ac sql.NullInt64
	if err := sc.Scan(&r.ID, &r.Name, &r.RecruitPublic, &r.RecruitCareer, &ap, &ac); err != nil {
		return Region{}, err
	}
	if ap.Valid {
		v := int(ap.Int64)
		r.ApplicantPublic = &v
	}
	if ac.Valid {
		v := int(ac.Int64)
		r.ApplicantCareer = &v
	}
	return r, nil
}

func (s *SQLStore) Regions(ctx context.Context) ([]Region, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+regionCols+` FROM regions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Region
	for rows.Next() {
		r, err := scanRegion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetRegion(ctx context.Context, id int64) (Region, error) {
	r, err := scanRegion(s.db.QueryRowContext(ctx, `SELECT `+regionCols+` FROM regions WHERE id=$1`, id))
	if err != nil {
		return Region{}, notFound(err, "region")
	}
	return r, nil
}

func (s *SQLStore) Subjects(ctx context.Context, t Track) ([]Subject, error) {
	return subjects(ctx, s.db, t)
}

func subjects(ctx context.Context, q queryer, t Track) ([]Subject, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, track, name, question_count, point_per_question, max_score, ordinal
		FROM subjects WHERE track=$1 ORDER BY ordinal, id`, string(t))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Subject
	for rows.Next() {
		var sub Subject
		var track string
		if err := rows.Scan(&sub.ID, &track, &sub.Name, &sub.QuestionCount, &sub.PointPerQuestion, &sub.MaxScore, &sub.Ordinal); err != nil {
			return nil, err
		}
		sub.Track = Track(track)
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *SQLStore) AnswerKeys(ctx context.Context, examID int64, t Track) ([]AnswerKey, error) {
	return answerKeys(ctx, s.db, examID, t)
}

func answerKeys(ctx context.Context, q queryer, examID int64, t Track) ([]AnswerKey, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT k.exam_id, k.subject_id, k.question_number, k.answer, k.is_confirmed
		FROM answer_keys k JOIN subjects sub ON sub.id = k.subject_id
		WHERE k.exam_id=$1 AND sub.track=$2
		ORDER BY sub.ordinal, k.question_number`, examID, string(t))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AnswerKey
	for rows.Next() {
		var k AnswerKey
		if err := rows.Scan(&k.ExamID, &k.SubjectID, &k.QuestionNumber, &k.Answer, &k.IsConfirmed); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

/* ---------------- submissions ---------------- */

const submissionCols = `id, exam_id, user_id, region_id, track, gender, total_score, bonus_type, bonus_rate,
	final_score, has_cutoff, edit_count, created_at, updated_at`

func scanSubmission(sc interface{ Scan(...any) error }) (Submission, error) {
	var sub Submission
	var track string
	err := sc.Scan(&sub.ID, &sub.ExamID, &sub.UserID, &sub.RegionID, &track, &sub.Gender, &sub.TotalScore,
		&sub.BonusType, &sub.BonusRate, &sub.FinalScore, &sub.HasCutoff, &sub.EditCount, &sub.CreatedAt, &sub.UpdatedAt)
	sub.Track = Track(track)
	return sub, err
}

func (s *SQLStore) GetSubmission(ctx context.Context, id int64) (Submission, error) {
	sub, err := scanSubmission(s.db.QueryRowContext(ctx, `SELECT `+submissionCols+` FROM submissions WHERE id=$1`, id))
	if err != nil {
		return Submission{}, notFound(err, "submission")
	}
	return sub, nil
}

// InsertSubmission stores a scored submission with its answers and subject
// scores in one transaction and returns the new id.
func (s *SQLStore) InsertSubmission(ctx context.Context, rec SubmissionRecord) (int64, error) {
	now := s.now().Unix()
	sub := rec.Submission
	if sub.CreatedAt == 0 {
		sub.CreatedAt = now
	}
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO submissions (exam_id, user_id, region_id, track, gender, total_score, bonus_type, bonus_rate,
				final_score, has_cutoff, edit_count, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
			RETURNING id`,
			sub.ExamID, sub.UserID, sub.RegionID, string(sub.Track), sub.Gender, sub.TotalScore, sub.BonusType,
			sub.BonusRate, sub.FinalScore, sub.HasCutoff, sub.EditCount, sub.CreatedAt, sub.CreatedAt).Scan(&id)
		if err != nil {
			return err
		}
		for _, a := range rec.Answers {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO user_answers (submission_id, subject_id, question_number, selected, is_correct, updated_at)
				VALUES ($1,$2,$3,$4,$5,$6)`,
				id, a.SubjectID, a.QuestionNumber, a.Selected, a.IsCorrect, now); err != nil {
				return err
			}
		}
		return insertSubjectScores(ctx, tx, id, rec.SubjectScores, now)
	})
	return id, err
}

func insertSubjectScores(ctx context.Context, q queryer, submissionID int64, scores []SubjectScore, now int64) error {
	for _, sc := range scores {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO subject_scores (submission_id, subject_id, raw_score, is_cutoff, created_at)
			VALUES ($1,$2,$3,$4,$5)`,
			submissionID, sc.SubjectID, sc.RawScore, sc.IsCutoff, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) SubjectScores(ctx context.Context, submissionID int64) ([]SubjectScore, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT submission_id, subject_id, raw_score, is_cutoff FROM subject_scores
		WHERE submission_id=$1 ORDER BY subject_id`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SubjectScore
	for rows.Next() {
		var sc SubjectScore
		if err := rows.Scan(&sc.SubmissionID, &sc.SubjectID, &sc.RawScore, &sc.IsCutoff); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}
