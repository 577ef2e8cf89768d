package exam

import (
	"context"
	"database/sql"

	"github.com/mind-engage/mindengage-passcut/internal/db"
)

func (s *SQLStore) Releases(ctx context.Context, examID int64) ([]PassCutRelease, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, exam_id, release_number, trigger_kind, ready_ratio, created_by, created_at
		FROM pass_cut_releases WHERE exam_id=$1 ORDER BY release_number`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PassCutRelease
	for rows.Next() {
		var r PassCutRelease
		if err := rows.Scan(&r.ID, &r.ExamID, &r.ReleaseNumber, &r.Trigger, &r.ReadyRatio, &r.CreatedBy, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

// PublishRelease writes the release, its snapshots and the optional notice
// atomically. A second release with the same number for the exam yields
// ErrDuplicateRelease and writes nothing.
func (s *SQLStore) PublishRelease(ctx context.Context, rel PassCutRelease, snaps []PassCutSnapshot, notice *Notice) error {
	now := s.now().Unix()
	if rel.CreatedAt == 0 {
		rel.CreatedAt = now
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pass_cut_releases (id, exam_id, release_number, trigger_kind, ready_ratio, created_by, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			rel.ID, rel.ExamID, rel.ReleaseNumber, rel.Trigger, rel.ReadyRatio, rel.CreatedBy, rel.CreatedAt); err != nil {
			return err
		}
		for _, sn := range snaps {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO pass_cut_snapshots (release_id, region_id, track, participant_count, recruit_count,
					average_score, sure_cut, likely_cut, possible_cut, status, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
				rel.ID, sn.RegionID, string(sn.Track), sn.ParticipantCount, sn.RecruitCount, sn.AverageScore,
				nullFloat(sn.SureCut), nullFloat(sn.LikelyCut), nullFloat(sn.PossibleCut), sn.Status, now); err != nil {
				return err
			}
		}
		if notice != nil {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO notices (title, body, author_id, created_at) VALUES ($1,$2,$3,$4)`,
				notice.Title, notice.Body, notice.AuthorID, now); err != nil {
				return err
			}
		}
		return nil
	})
	if db.IsUniqueViolation(err) {
		return ErrDuplicateRelease
	}
	return err
}

func (s *SQLStore) Snapshots(ctx context.Context, releaseID string) ([]PassCutSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT release_id, region_id, track, participant_count, recruit_count, average_score,
			sure_cut, likely_cut, possible_cut, status
		FROM pass_cut_snapshots WHERE release_id=$1 ORDER BY region_id, track`, releaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PassCutSnapshot
	for rows.Next() {
		var sn PassCutSnapshot
		var track string
		var sure, likely, possible sql.NullFloat64
		if err := rows.Scan(&sn.ReleaseID, &sn.RegionID, &track, &sn.ParticipantCount, &sn.RecruitCount,
			&sn.AverageScore, &sure, &likely, &possible, &sn.Status); err != nil {
			return nil, err
		}
		sn.Track = Track(track)
		sn.SureCut, sn.LikelyCut, sn.PossibleCut = floatPtr(sure), floatPtr(likely), floatPtr(possible)
		out = append(out, sn)
	}
	return out, rows.Err()
}

func (s *SQLStore) CountNotices(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notices`).Scan(&n)
	return n, err
}
