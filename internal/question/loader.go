package question

import (
	"context"
	"fmt"
	"time"
)

// Signer turns a storage key into a short-lived URL.
type Signer interface {
	Sign(key string, ttl time.Duration) (string, error)
}

// Loader serves banks to attempt sessions with media URLs signed on every
// call. Signed URLs are never cached.
type Loader struct {
	src    Source
	signer Signer
	ttl    time.Duration
}

func NewLoader(src Source, signer Signer, ttl time.Duration) *Loader {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Loader{src: src, signer: signer, ttl: ttl}
}

// Load returns the full bank in bank order. An empty bank is not an error.
func (l *Loader) Load(ctx context.Context, competitionID int64) ([]Question, error) {
	qs, err := l.src.ListByCompetition(ctx, competitionID)
	if err != nil {
		return nil, fmt.Errorf("load bank: %w", err)
	}
	out := make([]Question, len(qs))
	for i, q := range qs {
		if q.Media != nil && l.signer != nil {
			url, err := l.signer.Sign(q.Media.Key, l.ttl)
			if err != nil {
				return nil, fmt.Errorf("sign media of question %d: %w", q.ID, err)
			}
			m := *q.Media
			m.URL = url
			q.Media = &m
		}
		out[i] = q
	}
	return out, nil
}
