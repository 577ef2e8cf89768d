package exam

import "context"

// QuestionRef addresses one question of one subject.
type QuestionRef struct {
	SubjectID int64
	Number    int
}

// PopulationFilter narrows a population query. Zero values mean "any".
type PopulationFilter struct {
	ExamID          int64
	RegionID        int64
	Track           Track
	WithSubjectRaws bool
}

// ChunkTx is the transactional view used while rescoring one chunk of
// submissions. Every call runs inside the same database transaction.
type ChunkTx interface {
	LoadRecords(ctx context.Context, ids []int64) ([]SubmissionRecord, error)
	Subjects(ctx context.Context, t Track) ([]Subject, error)
	AnswerKeys(ctx context.Context, examID int64, t Track) ([]AnswerKey, error)
	UpdateSubmissionScore(ctx context.Context, s Submission) error
	UpdateAnswerCorrectness(ctx context.Context, answerID int64, correct bool) error
	ReplaceSubjectScores(ctx context.Context, submissionID int64, scores []SubjectScore) error
	InsertRescoreDetails(ctx context.Context, details []RescoreDetail) error
}
