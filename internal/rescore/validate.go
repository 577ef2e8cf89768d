package rescore

import (
	"fmt"
	"sort"

	"github.com/mind-engage/mindengage-passcut/internal/exam"
	"github.com/mind-engage/mindengage-passcut/internal/grading"
)

// Row is one normalized answer-key row of a correction request. The
// subject is addressed by id, or by name when the id is zero.
type Row struct {
	SubjectID      int64  `json:"subject_id,omitempty"`
	SubjectName    string `json:"subject_name,omitempty"`
	QuestionNumber int    `json:"question_number"`
	Answer         int    `json:"answer"`
}

// ValidationError rejects a whole row set before anything is written.
type ValidationError struct {
	Subject  string
	Question int // 0 when the problem is not tied to one question
	Reason   string
}

func (e *ValidationError) Error() string {
	if e.Question > 0 {
		return fmt.Sprintf("answer key: %s question %d: %s", e.Subject, e.Question, e.Reason)
	}
	return fmt.Sprintf("answer key: %s: %s", e.Subject, e.Reason)
}

// ValidateRows resolves every row to a subject of the track and checks that
// the set covers each question exactly once with a choice in 1..4.
func ValidateRows(subjects []exam.Subject, rows []Row, examID int64, confirmed bool) ([]exam.AnswerKey, error) {
	byID := make(map[int64]exam.Subject, len(subjects))
	byName := make(map[string]exam.Subject, len(subjects))
	for _, s := range subjects {
		byID[s.ID] = s
		byName[grading.NormalizeName(s.Name)] = s
	}

	seen := map[exam.QuestionRef]bool{}
	keys := make([]exam.AnswerKey, 0, len(rows))
	for _, r := range rows {
		var (
			s  exam.Subject
			ok bool
		)
		if r.SubjectID != 0 {
			s, ok = byID[r.SubjectID]
		} else {
			s, ok = byName[grading.NormalizeName(r.SubjectName)]
		}
		if !ok {
			label := r.SubjectName
			if r.SubjectID != 0 {
				label = fmt.Sprintf("subject #%d", r.SubjectID)
			}
			return nil, &ValidationError{Subject: label, Question: r.QuestionNumber, Reason: "unknown subject for track"}
		}
		if r.QuestionNumber < 1 || r.QuestionNumber > s.QuestionCount {
			return nil, &ValidationError{Subject: s.Name, Question: r.QuestionNumber,
				Reason: fmt.Sprintf("question number out of range 1..%d", s.QuestionCount)}
		}
		if r.Answer < 1 || r.Answer > 4 {
			return nil, &ValidationError{Subject: s.Name, Question: r.QuestionNumber,
				Reason: fmt.Sprintf("answer %d out of range 1..4", r.Answer)}
		}
		ref := exam.QuestionRef{SubjectID: s.ID, Number: r.QuestionNumber}
		if seen[ref] {
			return nil, &ValidationError{Subject: s.Name, Question: r.QuestionNumber, Reason: "duplicate row"}
		}
		seen[ref] = true
		keys = append(keys, exam.AnswerKey{
			ExamID: examID, SubjectID: s.ID, QuestionNumber: r.QuestionNumber, Answer: r.Answer, IsConfirmed: confirmed,
		})
	}

	for _, s := range subjects {
		for q := 1; q <= s.QuestionCount; q++ {
			if !seen[exam.QuestionRef{SubjectID: s.ID, Number: q}] {
				return nil, &ValidationError{Subject: s.Name, Question: q, Reason: "missing row"}
			}
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].SubjectID != keys[j].SubjectID {
			return keys[i].SubjectID < keys[j].SubjectID
		}
		return keys[i].QuestionNumber < keys[j].QuestionNumber
	})
	return keys, nil
}

// diffKeys lists questions whose correct choice differs between the stored
// and the proposed key.
func diffKeys(subjects []exam.Subject, old, proposed []exam.AnswerKey) []exam.ChangedQuestion {
	names := make(map[int64]string, len(subjects))
	for _, s := range subjects {
		names[s.ID] = s.Name
	}
	prev := make(map[exam.QuestionRef]int, len(old))
	for _, k := range old {
		prev[exam.QuestionRef{SubjectID: k.SubjectID, Number: k.QuestionNumber}] = k.Answer
	}
	var out []exam.ChangedQuestion
	for _, k := range proposed {
		was := prev[exam.QuestionRef{SubjectID: k.SubjectID, Number: k.QuestionNumber}]
		if was == k.Answer {
			continue
		}
		out = append(out, exam.ChangedQuestion{
			SubjectID: k.SubjectID, SubjectName: names[k.SubjectID],
			QuestionNumber: k.QuestionNumber, OldAnswer: was, NewAnswer: k.Answer,
		})
	}
	return out
}
