package exam

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Population returns the ranking view of every submission matching f,
// ordered by submission id.
func (s *SQLStore) Population(ctx context.Context, f PopulationFilter) ([]PopulationEntry, error) {
	where := []string{"exam_id=$1"}
	args := []any{f.ExamID}
	if f.RegionID != 0 {
		args = append(args, f.RegionID)
		where = append(where, fmt.Sprintf("region_id=$%d", len(args)))
	}
	if f.Track != "" {
		args = append(args, string(f.Track))
		where = append(where, fmt.Sprintf("track=$%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, region_id, track, final_score, has_cutoff, created_at
		FROM submissions WHERE `+cond+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	var out []PopulationEntry
	index := map[int64]int{}
	for rows.Next() {
		var e PopulationEntry
		var track string
		if err := rows.Scan(&e.SubmissionID, &e.RegionID, &track, &e.FinalScore, &e.HasCutoff, &e.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		e.Track = Track(track)
		index[e.SubmissionID] = len(out)
		out = append(out, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !f.WithSubjectRaws || len(out) == 0 {
		return out, nil
	}

	// qualify columns: the subquery repeats the submission filter
	qcond := "sub." + strings.ReplaceAll(cond, " AND ", " AND sub.")
	srows, err := s.db.QueryContext(ctx, `
		SELECT ss.submission_id, ss.subject_id, ss.raw_score
		FROM subject_scores ss JOIN submissions sub ON sub.id = ss.submission_id
		WHERE `+qcond, args...)
	if err != nil {
		return nil, err
	}
	defer srows.Close()
	for srows.Next() {
		var subID, subjectID int64
		var raw float64
		if err := srows.Scan(&subID, &subjectID, &raw); err != nil {
			return nil, err
		}
		i, ok := index[subID]
		if !ok {
			continue
		}
		if out[i].SubjectScores == nil {
			out[i].SubjectScores = map[int64]float64{}
		}
		out[i].SubjectScores[subjectID] = raw
	}
	return out, srows.Err()
}

// FinalPredictions returns the downstream prediction rows keyed by submission id.
func (s *SQLStore) FinalPredictions(ctx context.Context, ids []int64) (map[int64]FinalPrediction, error) {
	out := map[int64]FinalPrediction{}
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT submission_id, fitness_passed, bonus_points, known_final_score, known_final_rank
		FROM final_predictions WHERE submission_id IN (`+placeholders(1, len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var fp FinalPrediction
		var fit sql.NullBool
		var score sql.NullFloat64
		var rank sql.NullInt64
		if err := rows.Scan(&fp.SubmissionID, &fit, &fp.BonusPoints, &score, &rank); err != nil {
			return nil, err
		}
		if fit.Valid {
			v := fit.Bool
			fp.FitnessPassed = &v
		}
		if score.Valid {
			v := score.Float64
			fp.KnownFinalScore = &v
		}
		fp.KnownFinalRank = intPtr(rank)
		out[fp.SubmissionID] = fp
	}
	return out, rows.Err()
}

func (s *SQLStore) PutFinalPrediction(ctx context.Context, fp FinalPrediction) error {
	var fit sql.NullBool
	if fp.FitnessPassed != nil {
		fit = sql.NullBool{Bool: *fp.FitnessPassed, Valid: true}
	}
	var score sql.NullFloat64
	if fp.KnownFinalScore != nil {
		score = sql.NullFloat64{Float64: *fp.KnownFinalScore, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO final_predictions (submission_id, fitness_passed, bonus_points, known_final_score, known_final_rank)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (submission_id) DO UPDATE SET fitness_passed=EXCLUDED.fitness_passed,
			bonus_points=EXCLUDED.bonus_points, known_final_score=EXCLUDED.known_final_score,
			known_final_rank=EXCLUDED.known_final_rank`,
		fp.SubmissionID, fit, fp.BonusPoints, score, nullInt(fp.KnownFinalRank))
	return err
}
