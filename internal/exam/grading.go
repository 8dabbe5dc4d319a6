package exam

import (
	"errors"
	"math"

	"olympiad/internal/answer"
	"olympiad/internal/question"
)

var ErrNoQuestions = errors.New("no questions to grade")

type ItemResult struct {
	QuestionID int64  `json:"question_id"`
	Answered   bool   `json:"answered"`
	Correct    bool   `json:"correct"`
	Reason     string `json:"reason"`
}

type GradeResult struct {
	Score   int          `json:"score"`
	Correct int          `json:"correct"`
	Total   int          `json:"total"`
	Items   []ItemResult `json:"items"`
}

// Grade scores answers against the bank. When questionCap limits the set
// each participant sees, only questions present in answers are graded,
// since those are the ones that were presented. Answers for ids outside the
// bank are ignored.
func Grade(questions []question.Question, answers map[int64]string, questionCap int) (*GradeResult, error) {
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	capped := questionCap > 0 && questionCap < len(questions)
	res := &GradeResult{Items: make([]ItemResult, 0, len(questions))}
	for _, q := range questions {
		stored, present := answers[q.ID]
		if capped && !present {
			continue
		}
		v := answer.Check(q.Body, stored)
		res.Items = append(res.Items, ItemResult{
			QuestionID: q.ID,
			Answered:   v.Answered,
			Correct:    v.Correct,
			Reason:     v.Reason,
		})
		if v.Correct {
			res.Correct++
		}
	}

	res.Total = len(res.Items)
	if res.Total == 0 {
		// Capped attempt with nothing recorded: every presented question is wrong.
		res.Total = questionCap
	}
	res.Score = int(math.Round(float64(res.Correct) / float64(res.Total) * 100))
	return res, nil
}
