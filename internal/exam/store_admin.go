package exam

import (
	"context"
	"database/sql"
	"errors"
)

// Provisioning of reference data. The admin surface that drives these is
// external; the server and tests use them for seeding.

func (s *SQLStore) CreateExam(ctx context.Context, e Exam) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO exams (year, round, name, is_active, created_at) VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		e.Year, e.Round, e.Name, e.IsActive, s.now().Unix()).Scan(&id)
	return id, err
}

func (s *SQLStore) CreateRegion(ctx context.Context, r Region) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO regions (name, recruit_public, recruit_career, applicant_public, applicant_career)
		VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		r.Name, r.RecruitPublic, r.RecruitCareer, nullInt(r.ApplicantPublic), nullInt(r.ApplicantCareer)).Scan(&id)
	return id, err
}

// SetApplicantCount records the actual applicant count of a region/track.
func (s *SQLStore) SetApplicantCount(ctx context.Context, regionID int64, t Track, n int) error {
	col := "applicant_public"
	if t == TrackCareer {
		col = "applicant_career"
	}
	res, err := s.db.ExecContext(ctx, `UPDATE regions SET `+col+`=$1 WHERE id=$2`, n, regionID)
	if err != nil {
		return err
	}
	if k, _ := res.RowsAffected(); k == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) CreateSubject(ctx context.Context, sub Subject) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO subjects (track, name, question_count, point_per_question, max_score, ordinal)
		VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		string(sub.Track), sub.Name, sub.QuestionCount, sub.PointPerQuestion, sub.MaxScore, sub.Ordinal).Scan(&id)
	return id, err
}

/* ---------------- users ---------------- */

const RoleAdmin = "admin"

func (s *SQLStore) PutUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, role, password_hash) VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE SET username=EXCLUDED.username, role=EXCLUDED.role,
			password_hash=EXCLUDED.password_hash`,
		u.ID, u.Username, u.Role, u.PasswordHash)
	return err
}

func (s *SQLStore) UserByUsername(ctx context.Context, username string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, role, password_hash FROM users WHERE username=$1`, username).
		Scan(&u.ID, &u.Username, &u.Role, &u.PasswordHash)
	if err != nil {
		return User{}, notFound(err, "user")
	}
	return u, nil
}

// AdminUserID returns the id of the first admin, used as the author of
// automatic releases and notices.
func (s *SQLStore) AdminUserID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM users WHERE role=$1 ORDER BY id LIMIT 1`, RoleAdmin).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoAdminUser
	}
	return id, err
}

/* ---------------- site settings ---------------- */

func (s *SQLStore) Settings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM site_settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *SQLStore) PutSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO site_settings (key, value) VALUES ($1,$2)
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value`, key, value)
	return err
}
