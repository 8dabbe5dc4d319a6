package question

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var ErrCompetitionNotFound = errors.New("competition not found")

const mutationWarning = "competition already has submissions; existing scores were graded against the previous bank"

type store interface {
	Source
	Get(ctx context.Context, competitionID, questionID int64) (*Question, error)
	Create(ctx context.Context, q Question) (*Question, error)
	Update(ctx context.Context, q Question) (*Question, error)
	Delete(ctx context.Context, competitionID, questionID int64) error
	HasResults(ctx context.Context, competitionID int64) (bool, error)
}

type invalidator interface {
	Invalidate(ctx context.Context, competitionID int64) error
}

// Service is the operator side of the bank.
type Service struct {
	repo  store
	cache invalidator
}

func NewService(repo store, cache invalidator) *Service {
	return &Service{repo: repo, cache: cache}
}

type UpsertInput struct {
	CompetitionID int64
	QuestionID    int64
	SeqNo         int
	Prompt        string
	Type          Kind
	CorrectAnswer string
	Choices       []string
	MatchingPairs []Pair
	Media         *Media
}

// Mutation is returned by every write. Warning is set when the bank changed
// after participants had already been graded against it.
type Mutation struct {
	Question *Question `json:"question,omitempty"`
	Warning  string    `json:"warning,omitempty"`
}

func (s *Service) List(ctx context.Context, competitionID int64) ([]Question, error) {
	return s.repo.ListByCompetition(ctx, competitionID)
}

func (s *Service) Create(ctx context.Context, in UpsertInput) (*Mutation, error) {
	q, err := buildQuestion(in)
	if err != nil {
		return nil, err
	}
	created, err := s.repo.Create(ctx, q)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrCompetitionNotFound
		}
		return nil, err
	}
	return s.afterMutation(ctx, in.CompetitionID, created), nil
}

func (s *Service) Update(ctx context.Context, in UpsertInput) (*Mutation, error) {
	if in.QuestionID <= 0 {
		return nil, fmt.Errorf("%w: question id is required", ErrInvalidQuestion)
	}
	q, err := buildQuestion(in)
	if err != nil {
		return nil, err
	}
	q.ID = in.QuestionID
	updated, err := s.repo.Update(ctx, q)
	if err != nil {
		return nil, err
	}
	return s.afterMutation(ctx, in.CompetitionID, updated), nil
}

func (s *Service) Delete(ctx context.Context, competitionID, questionID int64) (*Mutation, error) {
	if err := s.repo.Delete(ctx, competitionID, questionID); err != nil {
		return nil, err
	}
	return s.afterMutation(ctx, competitionID, nil), nil
}

func (s *Service) afterMutation(ctx context.Context, competitionID int64, q *Question) *Mutation {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, competitionID); err != nil {
			log.Printf("question: competition %d: %v", competitionID, err)
		}
	}
	out := &Mutation{Question: q}
	has, err := s.repo.HasResults(ctx, competitionID)
	if err != nil {
		log.Printf("question: competition %d: %v", competitionID, err)
		return out
	}
	if has {
		out.Warning = mutationWarning
	}
	return out
}

func buildQuestion(in UpsertInput) (Question, error) {
	if in.CompetitionID <= 0 {
		return Question{}, fmt.Errorf("%w: competition id is required", ErrInvalidQuestion)
	}
	body, err := NewBody(in.Type, strings.TrimSpace(in.CorrectAnswer), in.Choices, in.MatchingPairs)
	if err != nil {
		return Question{}, err
	}
	q := Question{
		CompetitionID: in.CompetitionID,
		SeqNo:         in.SeqNo,
		Prompt:        strings.TrimSpace(in.Prompt),
		Body:          body,
	}
	if in.Media != nil {
		q.Media = &Media{Type: in.Media.Type, Key: strings.TrimSpace(in.Media.Key)}
	}
	if err := Validate(q); err != nil {
		return Question{}, err
	}
	return q, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
