package olympiad

import (
	"sort"
	"time"
)

// Standing is one participant's result joined with their identity.
type Standing struct {
	ResultID        int64     `json:"result_id"`
	ParticipantID   int64     `json:"participant_id"`
	ParticipantName string    `json:"participant_name"`
	Email           string    `json:"email,omitempty"`
	Score           int       `json:"score"`
	CompletedAt     time.Time `json:"completed_at"`
	Place           *int      `json:"place,omitempty"`
	CertificateKey  *string   `json:"certificate_key,omitempty"`
	CertificateURL  string    `json:"certificate_url,omitempty"`
}

// Rank orders standings by score descending. Ties go to whoever completed
// first, then to the lower result id. Every entry gets place = index + 1,
// so equal scores still get distinct places.
func Rank(in []Standing) []Standing {
	out := make([]Standing, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.CompletedAt.Equal(b.CompletedAt) {
			return a.CompletedAt.Before(b.CompletedAt)
		}
		return a.ResultID < b.ResultID
	})
	for i := range out {
		place := i + 1
		out[i].Place = &place
	}
	return out
}
