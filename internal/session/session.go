package session

import (
	"math"
	"sync"
	"time"

	"olympiad/internal/exam"
	"olympiad/internal/olympiad"
	"olympiad/internal/question"
)

type State string

const (
	StateLoading     State = "loading"
	StateUnavailable State = "unavailable"
	StateActive      State = "active"
	StateSubmitting  State = "submitting"
	StateSubmitted   State = "submitted"
	StateErrored     State = "errored"
)

// Terminal reports whether the attempt can no longer change without a new
// Start or a retried Submit.
func (s State) Terminal() bool {
	return s == StateSubmitted || s == StateErrored || s == StateUnavailable
}

// attempt is the in-process state of one session. All fields are guarded by
// mu; inflight is non-nil only while a grading call is running.
type attempt struct {
	mu          sync.Mutex
	key         Key
	state       State
	competition olympiad.Competition
	questions   []question.Question
	snap        Snapshot
	submission  *exam.Submission
	lastErr     error
	inflight    chan struct{}
}

func (a *attempt) find(questionID int64) (question.Question, bool) {
	for _, q := range a.questions {
		if q.ID == questionID {
			return q, true
		}
	}
	return question.Question{}, false
}

func (a *attempt) remaining(now time.Time) time.Duration {
	left := a.snap.EndsAt.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// payload lists every presented question, unanswered ones as "".
func (a *attempt) payload() map[int64]string {
	out := make(map[int64]string, len(a.questions))
	for _, q := range a.questions {
		out[q.ID] = a.snap.Answers[q.ID]
	}
	return out
}

type QuestionView struct {
	ID      int64           `json:"id"`
	SeqNo   int             `json:"seq_no"`
	Prompt  string          `json:"prompt"`
	Type    question.Kind   `json:"type"`
	Choices []string        `json:"choices,omitempty"`
	Lefts   []string        `json:"lefts,omitempty"`
	Rights  []string        `json:"rights,omitempty"`
	Media   *question.Media `json:"media,omitempty"`
}

// View is what a participant sees. Correct answers never leave the server.
type View struct {
	CompetitionID    int64            `json:"competition_id"`
	Title            string           `json:"title"`
	State            State            `json:"state"`
	EndsAt           time.Time        `json:"ends_at"`
	RemainingSeconds int              `json:"remaining_seconds"`
	Cursor           int              `json:"cursor"`
	Questions        []QuestionView   `json:"questions"`
	Answers          map[int64]string `json:"answers"`
	Submission       *exam.Submission `json:"submission,omitempty"`
	Error            string           `json:"error,omitempty"`
}

func (a *attempt) view(now time.Time) *View {
	v := &View{
		CompetitionID:    a.key.CompetitionID,
		Title:            a.competition.Title,
		State:            a.state,
		EndsAt:           a.snap.EndsAt,
		RemainingSeconds: int(math.Ceil(a.remaining(now).Seconds())),
		Cursor:           a.snap.Cursor,
		Questions:        make([]QuestionView, 0, len(a.questions)),
		Answers:          make(map[int64]string, len(a.snap.Answers)),
		Submission:       a.submission,
	}
	for id, val := range a.snap.Answers {
		v.Answers[id] = val
	}
	if a.lastErr != nil {
		v.Error = "submission failed, please retry"
	}
	for _, q := range a.questions {
		qv := QuestionView{ID: q.ID, SeqNo: q.SeqNo, Prompt: q.Prompt, Type: q.Kind(), Media: q.Media}
		switch b := q.Body.(type) {
		case question.MultipleChoice:
			qv.Choices = orderOr(a.snap.Scramble.Choices[q.ID], b.Choices)
		case question.Matching:
			qv.Lefts = b.Lefts()
			qv.Rights = orderOr(a.snap.Scramble.Rights[q.ID], b.Rights())
		}
		v.Questions = append(v.Questions, qv)
	}
	return v
}

func orderOr(scrambled, fallback []string) []string {
	if len(scrambled) == len(fallback) {
		return append([]string(nil), scrambled...)
	}
	return append([]string(nil), fallback...)
}
