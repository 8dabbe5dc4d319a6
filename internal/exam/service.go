package exam

import (
	"context"
	"errors"
	"fmt"
	"log"

	"olympiad/internal/olympiad"
	"olympiad/internal/question"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrResultNotFound = errors.New("result not found")
)

type SubmitReason string

const (
	ReasonManual  SubmitReason = "manual"
	ReasonTimeout SubmitReason = "timeout"
)

type competitionSource interface {
	Get(ctx context.Context, id int64) (*olympiad.Competition, error)
}

type resultStore interface {
	Upsert(ctx context.Context, competitionID, participantID int64, score int, answers map[int64]string) (*Result, error)
	GetByParticipant(ctx context.Context, competitionID, participantID int64) (*Result, error)
}

type Service struct {
	competitions competitionSource
	bank         question.Source
	results      resultStore
}

func NewService(competitions competitionSource, bank question.Source, results resultStore) *Service {
	return &Service{competitions: competitions, bank: bank, results: results}
}

type SubmitInput struct {
	CompetitionID int64
	ParticipantID int64
	Answers       map[int64]string
	Reason        SubmitReason
}

type Submission struct {
	Result  *Result      `json:"result"`
	Correct int          `json:"correct"`
	Total   int          `json:"total"`
	Reason  SubmitReason `json:"reason"`
}

// Submit grades the answers and stores the result. Late submissions are
// accepted; the attempt timer is enforced by the session, not here.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*Submission, error) {
	if in.CompetitionID <= 0 || in.ParticipantID <= 0 {
		return nil, fmt.Errorf("%w: competition and participant are required", ErrInvalidInput)
	}
	if len(in.Answers) == 0 {
		return nil, fmt.Errorf("%w: answers are required", ErrInvalidInput)
	}
	switch in.Reason {
	case "":
		in.Reason = ReasonManual
	case ReasonManual, ReasonTimeout:
	default:
		return nil, fmt.Errorf("%w: unknown submit reason %q", ErrInvalidInput, in.Reason)
	}

	c, err := s.competitions.Get(ctx, in.CompetitionID)
	if err != nil {
		return nil, err
	}
	if err := c.AcceptsAttempts(); err != nil {
		return nil, err
	}

	bank, err := s.bank.ListByCompetition(ctx, in.CompetitionID)
	if err != nil {
		return nil, fmt.Errorf("load question bank: %w", err)
	}
	graded, err := Grade(bank, in.Answers, c.QuestionCap(len(bank)))
	if err != nil {
		return nil, err
	}

	res, err := s.results.Upsert(ctx, in.CompetitionID, in.ParticipantID, graded.Score, in.Answers)
	if err != nil {
		return nil, err
	}
	log.Printf("submission competition=%d participant=%d reason=%s score=%d correct=%d/%d",
		in.CompetitionID, in.ParticipantID, in.Reason, graded.Score, graded.Correct, graded.Total)

	return &Submission{Result: res, Correct: graded.Correct, Total: graded.Total, Reason: in.Reason}, nil
}

func (s *Service) GetResult(ctx context.Context, competitionID, participantID int64) (*Result, error) {
	return s.results.GetByParticipant(ctx, competitionID, participantID)
}
