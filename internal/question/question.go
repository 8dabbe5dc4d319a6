package question

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrQuestionNotFound = errors.New("question not found")
	ErrInvalidQuestion  = errors.New("invalid question")
)

type Kind string

const (
	KindText           Kind = "text"
	KindMultipleChoice Kind = "multiple_choice"
	KindMatching       Kind = "matching"
)

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
)

// Media points at an object in storage. URL is only populated on loaded
// banks and is never persisted.
type Media struct {
	Type MediaType `json:"type"`
	Key  string    `json:"key"`
	URL  string    `json:"url,omitempty"`
}

type Pair struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

// Body is the type-specific part of a question. Exactly one of Text,
// MultipleChoice or Matching.
type Body interface {
	Kind() Kind
	validate() error
}

type Text struct {
	CorrectAnswer string
}

type MultipleChoice struct {
	Choices       []string
	CorrectAnswer string
}

type Matching struct {
	Pairs []Pair
}

func (Text) Kind() Kind           { return KindText }
func (MultipleChoice) Kind() Kind { return KindMultipleChoice }
func (Matching) Kind() Kind       { return KindMatching }

// Lefts returns the left column in authoring order.
func (m Matching) Lefts() []string {
	out := make([]string, 0, len(m.Pairs))
	for _, p := range m.Pairs {
		out = append(out, p.Left)
	}
	return out
}

// Rights returns the right column in authoring order.
func (m Matching) Rights() []string {
	out := make([]string, 0, len(m.Pairs))
	for _, p := range m.Pairs {
		out = append(out, p.Right)
	}
	return out
}

type Question struct {
	ID            int64
	CompetitionID int64
	SeqNo         int
	Prompt        string
	Body          Body
	Media         *Media
}

func (q Question) Kind() Kind {
	if q.Body == nil {
		return ""
	}
	return q.Body.Kind()
}

// NewBody builds the variant for kind from the flat authoring fields.
func NewBody(kind Kind, correctAnswer string, choices []string, pairs []Pair) (Body, error) {
	switch Kind(strings.TrimSpace(string(kind))) {
	case KindText:
		return Text{CorrectAnswer: correctAnswer}, nil
	case KindMultipleChoice:
		return MultipleChoice{Choices: append([]string(nil), choices...), CorrectAnswer: correctAnswer}, nil
	case KindMatching:
		return Matching{Pairs: append([]Pair(nil), pairs...)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown question type %q", ErrInvalidQuestion, kind)
	}
}

type wireQuestion struct {
	ID            int64    `json:"id"`
	CompetitionID int64    `json:"competition_id"`
	SeqNo         int      `json:"seq_no"`
	Prompt        string   `json:"prompt"`
	Type          Kind     `json:"type"`
	CorrectAnswer string   `json:"correct_answer,omitempty"`
	Choices       []string `json:"choices,omitempty"`
	MatchingPairs []Pair   `json:"matching_pairs,omitempty"`
	Media         *Media   `json:"media,omitempty"`
}

func (q Question) MarshalJSON() ([]byte, error) {
	w := wireQuestion{
		ID:            q.ID,
		CompetitionID: q.CompetitionID,
		SeqNo:         q.SeqNo,
		Prompt:        q.Prompt,
		Media:         q.Media,
	}
	switch b := q.Body.(type) {
	case Text:
		w.Type = KindText
		w.CorrectAnswer = b.CorrectAnswer
	case MultipleChoice:
		w.Type = KindMultipleChoice
		w.CorrectAnswer = b.CorrectAnswer
		w.Choices = b.Choices
	case Matching:
		w.Type = KindMatching
		w.MatchingPairs = b.Pairs
	}
	return json.Marshal(w)
}

func (q *Question) UnmarshalJSON(data []byte) error {
	var w wireQuestion
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	body, err := NewBody(w.Type, w.CorrectAnswer, w.Choices, w.MatchingPairs)
	if err != nil {
		return err
	}
	*q = Question{
		ID:            w.ID,
		CompetitionID: w.CompetitionID,
		SeqNo:         w.SeqNo,
		Prompt:        w.Prompt,
		Body:          body,
		Media:         w.Media,
	}
	return nil
}
