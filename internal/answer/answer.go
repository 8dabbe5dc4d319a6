// Package answer turns raw answer captures into the canonical strings that
// are stored with a submission, and decides whether a stored answer is
// correct. Used by both the attempt session and the grading engine.
package answer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"olympiad/internal/question"
)

var ErrInvalidAnswer = errors.New("invalid answer")

const (
	ReasonCorrect          = "correct"
	ReasonWrong            = "wrong"
	ReasonUnanswered       = "unanswered"
	ReasonMalformedPayload = "malformed_payload"
)

// Raw is what a participant captured for one question. Value is used by text
// and multiple choice questions, Pairs by matching questions.
type Raw struct {
	Value string            `json:"value,omitempty"`
	Pairs map[string]string `json:"pairs,omitempty"`
}

type Verdict struct {
	Answered bool   `json:"answered"`
	Correct  bool   `json:"correct"`
	Reason   string `json:"reason"`
}

// Encode canonicalizes raw for storage. A blank capture encodes to "".
func Encode(body question.Body, raw Raw) (string, error) {
	switch b := body.(type) {
	case question.Text:
		return strings.TrimSpace(raw.Value), nil
	case question.MultipleChoice:
		if raw.Value == "" {
			return "", nil
		}
		for _, c := range b.Choices {
			if c == raw.Value {
				return raw.Value, nil
			}
		}
		return "", fmt.Errorf("%w: %q is not one of the choices", ErrInvalidAnswer, raw.Value)
	case question.Matching:
		if len(raw.Pairs) == 0 {
			return "", nil
		}
		known := make(map[string]struct{}, len(b.Pairs))
		for _, p := range b.Pairs {
			known[p.Left] = struct{}{}
		}
		for left := range raw.Pairs {
			if _, ok := known[left]; !ok {
				return "", fmt.Errorf("%w: unknown left value %q", ErrInvalidAnswer, left)
			}
		}
		return EncodePairs(raw.Pairs)
	default:
		return "", fmt.Errorf("%w: unsupported question type", ErrInvalidAnswer)
	}
}

// EncodePairs serializes a matching answer as a JSON object with sorted keys.
func EncodePairs(pairs map[string]string) (string, error) {
	b, err := json.Marshal(pairs)
	if err != nil {
		return "", fmt.Errorf("encode pairs: %w", err)
	}
	return string(b), nil
}

// DecodePairs parses a stored matching answer.
func DecodePairs(stored string) (map[string]string, error) {
	var out map[string]string
	if err := json.Unmarshal([]byte(stored), &out); err != nil {
		return nil, fmt.Errorf("decode pairs: %w", err)
	}
	return out, nil
}

// Check compares a stored answer against the question's key. It never
// fails: empty and malformed answers are simply incorrect.
func Check(body question.Body, stored string) Verdict {
	switch b := body.(type) {
	case question.Text:
		given := strings.TrimSpace(stored)
		if given == "" {
			return Verdict{Reason: ReasonUnanswered}
		}
		return verdict(strings.EqualFold(given, strings.TrimSpace(b.CorrectAnswer)))
	case question.MultipleChoice:
		if stored == "" {
			return Verdict{Reason: ReasonUnanswered}
		}
		return verdict(stored == b.CorrectAnswer)
	case question.Matching:
		if strings.TrimSpace(stored) == "" {
			return Verdict{Reason: ReasonUnanswered}
		}
		given, err := DecodePairs(stored)
		if err != nil {
			log.Printf("answer: malformed matching payload %q: %v", truncate(stored, 64), err)
			return Verdict{Answered: true, Reason: ReasonMalformedPayload}
		}
		if len(b.Pairs) == 0 {
			return verdict(false)
		}
		for _, p := range b.Pairs {
			if v, ok := given[p.Left]; !ok || v != p.Right {
				return verdict(false)
			}
		}
		return verdict(true)
	default:
		return Verdict{Answered: stored != "", Reason: ReasonMalformedPayload}
	}
}

func verdict(ok bool) Verdict {
	if ok {
		return Verdict{Answered: true, Correct: true, Reason: ReasonCorrect}
	}
	return Verdict{Answered: true, Reason: ReasonWrong}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
