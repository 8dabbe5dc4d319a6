package olympiad

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrCompetitionNotFound = errors.New("competition not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrAlreadyCompleted    = errors.New("competition already completed")
	ErrNotCompleted        = errors.New("competition is not completed")
	ErrNotPublished        = errors.New("competition is not published")
	ErrFinalizeInProgress  = errors.New("finalization already in progress")
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusCompleted Status = "completed"
)

type Competition struct {
	ID                      int64     `json:"id"`
	Title                   string    `json:"title"`
	Description             string    `json:"description"`
	Difficulty              string    `json:"difficulty"`
	DurationSeconds         int       `json:"duration_seconds"`
	RandomizeQuestions      bool      `json:"randomize_questions"`
	QuestionsPerParticipant int       `json:"questions_per_participant,omitempty"`
	IsPublished             bool      `json:"is_published"`
	IsCompleted             bool      `json:"is_completed"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

func (c Competition) Status() Status {
	switch {
	case c.IsCompleted:
		return StatusCompleted
	case c.IsPublished:
		return StatusPublished
	default:
		return StatusDraft
	}
}

func (c Competition) Duration() time.Duration {
	return time.Duration(c.DurationSeconds) * time.Second
}

// AcceptsAttempts reports whether participants may start or submit.
func (c Competition) AcceptsAttempts() error {
	if c.IsCompleted {
		return ErrAlreadyCompleted
	}
	if !c.IsPublished {
		return ErrNotPublished
	}
	return nil
}

// QuestionCap is the per-participant question limit, or 0 when every
// participant gets the full bank.
func (c Competition) QuestionCap(bankSize int) int {
	if c.QuestionsPerParticipant <= 0 || c.QuestionsPerParticipant >= bankSize {
		return 0
	}
	return c.QuestionsPerParticipant
}

type CompetitionInput struct {
	Title                   string
	Description             string
	Difficulty              string
	DurationSeconds         int
	RandomizeQuestions      bool
	QuestionsPerParticipant int
}

func (in *CompetitionInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Difficulty = strings.TrimSpace(in.Difficulty)
	if in.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if in.DurationSeconds <= 0 {
		return fmt.Errorf("%w: duration_seconds must be positive", ErrInvalidInput)
	}
	if in.QuestionsPerParticipant < 0 {
		return fmt.Errorf("%w: questions_per_participant must not be negative", ErrInvalidInput)
	}
	return nil
}
