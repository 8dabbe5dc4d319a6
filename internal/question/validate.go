package question

import (
	"fmt"
	"strings"
)

// Validate checks that q is a well-formed bank entry.
func Validate(q Question) error {
	if strings.TrimSpace(q.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidQuestion)
	}
	if q.Body == nil {
		return fmt.Errorf("%w: question type is required", ErrInvalidQuestion)
	}
	if err := q.Body.validate(); err != nil {
		return err
	}
	if q.Media != nil {
		switch q.Media.Type {
		case MediaImage, MediaVideo, MediaAudio:
		default:
			return fmt.Errorf("%w: unsupported media type %q", ErrInvalidQuestion, q.Media.Type)
		}
		if strings.TrimSpace(q.Media.Key) == "" {
			return fmt.Errorf("%w: media key is required", ErrInvalidQuestion)
		}
	}
	return nil
}

func (t Text) validate() error {
	if strings.TrimSpace(t.CorrectAnswer) == "" {
		return fmt.Errorf("%w: correct_answer is required", ErrInvalidQuestion)
	}
	return nil
}

func (m MultipleChoice) validate() error {
	if len(m.Choices) < 2 {
		return fmt.Errorf("%w: choices must contain at least 2 options", ErrInvalidQuestion)
	}
	seen := make(map[string]struct{}, len(m.Choices))
	for i, c := range m.Choices {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("%w: choices[%d] is empty", ErrInvalidQuestion, i)
		}
		if _, ok := seen[c]; ok {
			return fmt.Errorf("%w: duplicate choice %q", ErrInvalidQuestion, c)
		}
		seen[c] = struct{}{}
	}
	if _, ok := seen[m.CorrectAnswer]; !ok {
		return fmt.Errorf("%w: correct_answer must be one of the choices", ErrInvalidQuestion)
	}
	return nil
}

func (m Matching) validate() error {
	if len(m.Pairs) < 2 {
		return fmt.Errorf("%w: matching_pairs must contain at least 2 pairs", ErrInvalidQuestion)
	}
	seen := make(map[string]struct{}, len(m.Pairs))
	for i, p := range m.Pairs {
		if strings.TrimSpace(p.Left) == "" || strings.TrimSpace(p.Right) == "" {
			return fmt.Errorf("%w: matching_pairs[%d] needs left and right", ErrInvalidQuestion, i)
		}
		if _, ok := seen[p.Left]; ok {
			return fmt.Errorf("%w: duplicate left value %q", ErrInvalidQuestion, p.Left)
		}
		seen[p.Left] = struct{}{}
	}
	return nil
}
