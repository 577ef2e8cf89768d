package exam

import (
	"errors"
	"strings"
)

// Track is one of the two parallel exam variants.
type Track string

const (
	TrackPublic Track = "PUBLIC" // open recruitment
	TrackCareer Track = "CAREER" // career-track recruitment
)

var Tracks = []Track{TrackPublic, TrackCareer}

func ParseTrack(s string) (Track, error) {
	switch Track(strings.ToUpper(strings.TrimSpace(s))) {
	case TrackPublic:
		return TrackPublic, nil
	case TrackCareer:
		return TrackCareer, nil
	}
	return "", errors.New("unknown track: " + s)
}

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateRelease = errors.New("release already published")
	ErrNoActiveExam     = errors.New("no active exam")
	ErrNoAdminUser      = errors.New("no admin user")
)

type Exam struct {
	ID       int64  `json:"id"`
	Year     int    `json:"year"`
	Round    int    `json:"round"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

type Region struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	RecruitPublic   int    `json:"recruit_public"`
	RecruitCareer   int    `json:"recruit_career"`
	ApplicantPublic *int   `json:"applicant_public,omitempty"`
	ApplicantCareer *int   `json:"applicant_career,omitempty"`
}

func (r Region) RecruitCount(t Track) int {
	if t == TrackCareer {
		return r.RecruitCareer
	}
	return r.RecruitPublic
}

// ApplicantCount reports the actual applicant count, if it has been entered.
func (r Region) ApplicantCount(t Track) (int, bool) {
	p := r.ApplicantPublic
	if t == TrackCareer {
		p = r.ApplicantCareer
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

type Subject struct {
	ID               int64   `json:"id"`
	Track            Track   `json:"track"`
	Name             string  `json:"name"`
	QuestionCount    int     `json:"question_count"`
	PointPerQuestion float64 `json:"point_per_question"`
	MaxScore         float64 `json:"max_score"`
	Ordinal          int     `json:"ordinal"`
}

type AnswerKey struct {
	ExamID         int64 `json:"exam_id"`
	SubjectID      int64 `json:"subject_id"`
	QuestionNumber int   `json:"question_number"`
	Answer         int   `json:"answer"`
	IsConfirmed    bool  `json:"is_confirmed"`
}

type Submission struct {
	ID         int64   `json:"id"`
	ExamID     int64   `json:"exam_id"`
	UserID     string  `json:"user_id"`
	RegionID   int64   `json:"region_id"`
	Track      Track   `json:"track"`
	Gender     string  `json:"gender"`
	TotalScore float64 `json:"total_score"`
	BonusType  string  `json:"bonus_type"`
	BonusRate  float64 `json:"bonus_rate"`
	FinalScore float64 `json:"final_score"`
	HasCutoff  bool    `json:"has_cutoff"`
	EditCount  int     `json:"edit_count"`
	CreatedAt  int64   `json:"created_at"`
	UpdatedAt  int64   `json:"updated_at"`
}

type UserAnswer struct {
	ID             int64 `json:"id"`
	SubmissionID   int64 `json:"submission_id"`
	SubjectID      int64 `json:"subject_id"`
	QuestionNumber int   `json:"question_number"`
	Selected       int   `json:"selected"` // 0 = unanswered
	IsCorrect      bool  `json:"is_correct"`
}

type SubjectScore struct {
	SubmissionID int64   `json:"submission_id"`
	SubjectID    int64   `json:"subject_id"`
	RawScore     float64 `json:"raw_score"`
	IsCutoff     bool    `json:"is_cutoff"`
}

// SubmissionRecord is a submission with everything rescoring rewrites.
type SubmissionRecord struct {
	Submission    Submission
	Answers       []UserAnswer
	SubjectScores []SubjectScore
}

// ChangedQuestion is one answer-key row whose correct choice moved.
// OldAnswer is 0 when the question had no key before.
type ChangedQuestion struct {
	SubjectID      int64  `json:"subject_id"`
	SubjectName    string `json:"subject_name"`
	QuestionNumber int    `json:"question_number"`
	OldAnswer      int    `json:"old_answer"`
	NewAnswer      int    `json:"new_answer"`
}

type RescoreEvent struct {
	ID        string            `json:"id"`
	ExamID    int64             `json:"exam_id"`
	Track     Track             `json:"track"`
	Reason    string            `json:"reason"`
	Changes   []ChangedQuestion `json:"changes"`
	CreatedAt int64             `json:"created_at"`
}

type RescoreDetail struct {
	ID           int64   `json:"id"`
	EventID      string  `json:"event_id"`
	SubmissionID int64   `json:"submission_id"`
	UserID       string  `json:"user_id"`
	RegionID     int64   `json:"region_id"`
	Track        Track   `json:"track"`
	OldTotal     float64 `json:"old_total"`
	NewTotal     float64 `json:"new_total"`
	OldFinal     float64 `json:"old_final"`
	NewFinal     float64 `json:"new_final"`
	OldCutoff    bool    `json:"old_cutoff"`
	NewCutoff    bool    `json:"new_cutoff"`
	OldRank      *int    `json:"old_rank,omitempty"` // nil until ranks are filled in
	NewRank      *int    `json:"new_rank,omitempty"`
	IsRead       bool    `json:"is_read"`
}

type PassCutRelease struct {
	ID            string  `json:"id"`
	ExamID        int64   `json:"exam_id"`
	ReleaseNumber int     `json:"release_number"`
	Trigger       string  `json:"trigger"`
	ReadyRatio    float64 `json:"ready_ratio"`
	CreatedBy     string  `json:"created_by"`
	CreatedAt     int64   `json:"created_at"`
}

type PassCutSnapshot struct {
	ReleaseID        string   `json:"release_id"`
	RegionID         int64    `json:"region_id"`
	Track            Track    `json:"track"`
	ParticipantCount int      `json:"participant_count"`
	RecruitCount     int      `json:"recruit_count"`
	AverageScore     float64  `json:"average_score"`
	SureCut          *float64 `json:"sure_cut,omitempty"`
	LikelyCut        *float64 `json:"likely_cut,omitempty"`
	PossibleCut      *float64 `json:"possible_cut,omitempty"`
	Status           string   `json:"status"`
}

type FinalPrediction struct {
	SubmissionID    int64    `json:"submission_id"`
	FitnessPassed   *bool    `json:"fitness_passed,omitempty"`
	BonusPoints     float64  `json:"bonus_points"`
	KnownFinalScore *float64 `json:"known_final_score,omitempty"`
	KnownFinalRank  *int     `json:"known_final_rank,omitempty"`
}

type Notice struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	AuthorID string `json:"author_id"`
}

type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Role         string `json:"role"`
	PasswordHash string `json:"-"`
}

// PopulationEntry is the ranking view of one submission.
type PopulationEntry struct {
	SubmissionID  int64             `json:"submission_id"`
	RegionID      int64             `json:"region_id"`
	Track         Track             `json:"track"`
	FinalScore    float64           `json:"final_score"`
	HasCutoff     bool              `json:"has_cutoff"`
	SubjectScores map[int64]float64 `json:"subject_scores,omitempty"`
	CreatedAt     int64             `json:"created_at"`
}
