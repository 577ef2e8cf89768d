package ranking

import (
	"context"
	"fmt"

	"github.com/mind-engage/mindengage-passcut/internal/exam"
)

type Store interface {
	GetSubmission(ctx context.Context, id int64) (exam.Submission, error)
	GetRegion(ctx context.Context, id int64) (exam.Region, error)
	Subjects(ctx context.Context, t exam.Track) ([]exam.Subject, error)
	Population(ctx context.Context, f exam.PopulationFilter) ([]exam.PopulationEntry, error)
	FinalPredictions(ctx context.Context, ids []int64) (map[int64]exam.FinalPrediction, error)
}

type Service struct {
	Store Store
}

func NewService(st Store) *Service { return &Service{Store: st} }

type SubjectStanding struct {
	SubjectID   int64   `json:"subject_id"`
	SubjectName string  `json:"subject_name"`
	RawScore    float64 `json:"raw_score"`
	Standing
}

type Result struct {
	SubmissionID int64             `json:"submission_id"`
	ExamID       int64             `json:"exam_id"`
	FinalScore   float64           `json:"final_score"`
	Overall      Standing          `json:"overall"`
	Subjects     []SubjectStanding `json:"subjects"`
}

// load returns the submission, its ranking view and the (exam, region,
// track) population it belongs to.
func (s *Service) load(ctx context.Context, id int64, withSubjects bool) (exam.Submission, exam.PopulationEntry, []exam.PopulationEntry, error) {
	sub, err := s.Store.GetSubmission(ctx, id)
	if err != nil {
		return exam.Submission{}, exam.PopulationEntry{}, nil, err
	}
	pop, err := s.Store.Population(ctx, exam.PopulationFilter{
		ExamID: sub.ExamID, RegionID: sub.RegionID, Track: sub.Track, WithSubjectRaws: withSubjects,
	})
	if err != nil {
		return exam.Submission{}, exam.PopulationEntry{}, nil, err
	}
	for _, e := range pop {
		if e.SubmissionID == id {
			return sub, e, pop, nil
		}
	}
	return sub, exam.PopulationEntry{}, nil, fmt.Errorf("submission %d: %w", id, ErrNoPopulation)
}

// RankSubmission ranks a submission overall and per subject.
func (s *Service) RankSubmission(ctx context.Context, id int64) (Result, error) {
	sub, self, pop, err := s.load(ctx, id, true)
	if err != nil {
		return Result{}, err
	}
	overall, err := StandingOf(pop, self)
	if err != nil {
		return Result{}, err
	}
	res := Result{SubmissionID: id, ExamID: sub.ExamID, FinalScore: self.FinalScore, Overall: overall}

	subjects, err := s.Store.Subjects(ctx, sub.Track)
	if err != nil {
		return Result{}, err
	}
	sel, basis := SelectPopulation(pop, self.HasCutoff)
	for _, subj := range subjects {
		raw, ok := self.SubjectScores[subj.ID]
		if !ok {
			continue
		}
		scores := make([]float64, 0, len(sel))
		for _, e := range sel {
			if v, ok := e.SubjectScores[subj.ID]; ok {
				scores = append(scores, v)
			}
		}
		st, err := Rank(raw, scores)
		if err != nil {
			return Result{}, fmt.Errorf("subject %s: %w", subj.Name, err)
		}
		st.Basis = basis
		res.Subjects = append(res.Subjects, SubjectStanding{SubjectID: subj.ID, SubjectName: subj.Name, RawScore: raw, Standing: st})
	}
	return res, nil
}

type Prediction struct {
	SubmissionID int64       `json:"submission_id"`
	ExamID       int64       `json:"exam_id"`
	RegionID     int64       `json:"region_id"`
	Track        exam.Track  `json:"track"`
	FinalScore   float64     `json:"final_score"`
	Standing     Standing    `json:"standing"`
	Position     int         `json:"position"` // place in the tie-broken listing
	Level        Level       `json:"level"`
	Thresholds   Thresholds  `json:"thresholds"`
	Bands        []BandRange `json:"bands"`
}

// Predict classifies a submission into a prediction band and reports the
// score span of every band over the clean population.
func (s *Service) Predict(ctx context.Context, id int64) (Prediction, error) {
	sub, self, pop, err := s.load(ctx, id, false)
	if err != nil {
		return Prediction{}, err
	}
	region, err := s.Store.GetRegion(ctx, sub.RegionID)
	if err != nil {
		return Prediction{}, err
	}
	th, ok := BandThresholds(region.RecruitCount(sub.Track))
	if !ok {
		return Prediction{}, fmt.Errorf("region %s does not recruit on %s: %w", region.Name, sub.Track, ErrNoPopulation)
	}
	st, err := StandingOf(pop, self)
	if err != nil {
		return Prediction{}, err
	}

	sel, _ := SelectPopulation(pop, self.HasCutoff)
	ids := make([]int64, len(sel))
	for i, e := range sel {
		ids[i] = e.SubmissionID
	}
	finals, err := s.Store.FinalPredictions(ctx, ids)
	if err != nil {
		return Prediction{}, err
	}
	position := 0
	for i, e := range Order(sel, finals) {
		if e.SubmissionID == id {
			position = i + 1
			break
		}
	}

	clean, _ := SelectPopulation(pop, false)
	return Prediction{
		SubmissionID: id,
		ExamID:       sub.ExamID,
		RegionID:     sub.RegionID,
		Track:        sub.Track,
		FinalScore:   self.FinalScore,
		Standing:     st,
		Position:     position,
		Level:        Classify(st.Rank, self.HasCutoff, th),
		Thresholds:   th,
		Bands:        BandRanges(NewDistribution(finalScores(clean)), th),
	}, nil
}
