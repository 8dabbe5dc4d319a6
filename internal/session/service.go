package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"olympiad/internal/answer"
	"olympiad/internal/exam"
	"olympiad/internal/olympiad"
	"olympiad/internal/question"
)

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrNotActive            = errors.New("session is not active")
	ErrTimeExpired          = errors.New("time is up")
	ErrQuestionNotPresented = errors.New("question is not part of this session")
)

type competitionSource interface {
	Get(ctx context.Context, id int64) (*olympiad.Competition, error)
}

type bankLoader interface {
	Load(ctx context.Context, competitionID int64) ([]question.Question, error)
}

// Submitter grades a finished attempt.
type Submitter interface {
	Submit(ctx context.Context, in exam.SubmitInput) (*exam.Submission, error)
}

// Shuffler permutes n elements through swap, like rand.Shuffle.
type Shuffler func(n int, swap func(i, j int))

type Config struct {
	Now           func() time.Time
	Shuffle       Shuffler
	SubmitTimeout time.Duration
	// Retention is how long a finished or unavailable attempt stays
	// readable in memory before it is dropped.
	Retention time.Duration
}

type Service struct {
	competitions competitionSource
	loader       bankLoader
	store        Store
	submitter    Submitter
	now          func() time.Time
	shuffle      Shuffler
	timeout      time.Duration
	retention    time.Duration

	mu       sync.Mutex
	attempts map[Key]*attempt
}

func NewService(competitions competitionSource, loader bankLoader, store Store, submitter Submitter, cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Shuffle == nil {
		cfg.Shuffle = lockedShuffle(rand.New(rand.NewSource(time.Now().UnixNano())))
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 30 * time.Second
	}
	if cfg.Retention <= 0 {
		cfg.Retention = time.Minute
	}
	return &Service{
		competitions: competitions,
		loader:       loader,
		store:        store,
		submitter:    submitter,
		now:          cfg.Now,
		shuffle:      cfg.Shuffle,
		timeout:      cfg.SubmitTimeout,
		retention:    cfg.Retention,
		attempts:     make(map[Key]*attempt),
	}
}

func lockedShuffle(rnd *rand.Rand) Shuffler {
	var mu sync.Mutex
	return func(n int, swap func(i, j int)) {
		mu.Lock()
		defer mu.Unlock()
		rnd.Shuffle(n, swap)
	}
}

// Start enters the attempt, rehydrating it when a snapshot exists. A live
// attempt already held in memory is returned as is. When the persisted end
// timestamp has already passed the attempt is submitted right away.
func (s *Service) Start(ctx context.Context, key Key) (*View, error) {
	if a := s.lookup(key); a != nil {
		a.mu.Lock()
		live := !a.state.Terminal()
		a.mu.Unlock()
		if live {
			return s.Tick(ctx, key)
		}
	}

	comp, err := s.competitions.Get(ctx, key.CompetitionID)
	if err != nil {
		return nil, err
	}
	if err := comp.AcceptsAttempts(); err != nil {
		return nil, err
	}

	a := &attempt{key: key, state: StateLoading, competition: *comp}
	bank, err := s.loader.Load(ctx, key.CompetitionID)
	if err != nil {
		return nil, err
	}
	if len(bank) == 0 {
		a.state = StateUnavailable
		if s.register(a) == a {
			s.evictLater(a)
		}
		return a.view(s.now()), exam.ErrNoQuestions
	}

	snap, err := s.store.Load(ctx, key)
	switch {
	case errors.Is(err, ErrNoSnapshot):
		snap, err = s.commit(ctx, key, *comp, bank)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	a.snap = *snap
	a.questions = presented(bank, a.snap.Scramble.QuestionOrder)
	if len(a.questions) == 0 {
		// the bank was replaced since the attempt began
		a.snap.Scramble = s.scramble(*comp, bank)
		a.questions = presented(bank, a.snap.Scramble.QuestionOrder)
		if err := s.store.Save(ctx, key, &a.snap); err != nil {
			return nil, err
		}
	}
	a.snap.Cursor = clamp(a.snap.Cursor, len(a.questions))
	a.state = StateActive
	a = s.register(a)

	log.Printf("session start competition=%d participant=%d ends_at=%s", key.CompetitionID, key.ParticipantID, a.snap.EndsAt.Format(time.RFC3339))
	return s.Tick(ctx, key)
}

// View returns the current state without side effects.
func (s *Service) View(ctx context.Context, key Key) (*View, error) {
	a := s.lookup(key)
	if a == nil {
		return nil, ErrSessionNotFound
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.view(s.now()), nil
}

// Tick recomputes the remaining time from the end timestamp and submits
// the attempt once it reaches zero.
func (s *Service) Tick(ctx context.Context, key Key) (*View, error) {
	a := s.lookup(key)
	if a == nil {
		return nil, ErrSessionNotFound
	}
	a.mu.Lock()
	expired := a.state == StateActive && a.remaining(s.now()) == 0
	a.mu.Unlock()
	if expired {
		return s.submit(ctx, a, exam.ReasonTimeout)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.view(s.now()), nil
}

// RecordAnswer canonicalizes raw and writes the whole answer set through to
// the store. Recording the same answer twice is a no-op.
func (s *Service) RecordAnswer(ctx context.Context, key Key, questionID int64, raw answer.Raw) (*View, error) {
	a := s.lookup(key)
	if a == nil {
		return nil, ErrSessionNotFound
	}
	a.mu.Lock()
	if a.state != StateActive {
		a.mu.Unlock()
		return nil, ErrNotActive
	}
	if a.remaining(s.now()) == 0 {
		a.mu.Unlock()
		if _, err := s.submit(ctx, a, exam.ReasonTimeout); err != nil {
			log.Printf("session timeout submit competition=%d participant=%d: %v", key.CompetitionID, key.ParticipantID, err)
		}
		return nil, ErrTimeExpired
	}
	defer a.mu.Unlock()

	q, ok := a.find(questionID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrQuestionNotPresented, questionID)
	}
	encoded, err := answer.Encode(q.Body, raw)
	if err != nil {
		return nil, err
	}

	prev, had := a.snap.Answers[questionID]
	if had && prev == encoded || !had && encoded == "" {
		return a.view(s.now()), nil
	}
	if encoded == "" {
		delete(a.snap.Answers, questionID)
	} else {
		a.snap.Answers[questionID] = encoded
	}
	if err := s.store.Save(ctx, key, &a.snap); err != nil {
		if had {
			a.snap.Answers[questionID] = prev
		} else {
			delete(a.snap.Answers, questionID)
		}
		return nil, err
	}
	return a.view(s.now()), nil
}

func (s *Service) Advance(ctx context.Context, key Key) (*View, error) {
	return s.move(ctx, key, 1)
}

func (s *Service) Retreat(ctx context.Context, key Key) (*View, error) {
	return s.move(ctx, key, -1)
}

func (s *Service) move(ctx context.Context, key Key, delta int) (*View, error) {
	a := s.lookup(key)
	if a == nil {
		return nil, ErrSessionNotFound
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateActive {
		return nil, ErrNotActive
	}
	next := clamp(a.snap.Cursor+delta, len(a.questions))
	if next == a.snap.Cursor {
		return a.view(s.now()), nil
	}
	a.snap.Cursor = next
	if err := s.store.Save(ctx, key, &a.snap); err != nil {
		log.Printf("session cursor save competition=%d participant=%d: %v", key.CompetitionID, key.ParticipantID, err)
	}
	return a.view(s.now()), nil
}

// Submit hands the attempt to grading. Concurrent calls share one grading
// call and its outcome.
func (s *Service) Submit(ctx context.Context, key Key, reason exam.SubmitReason) (*View, error) {
	a := s.lookup(key)
	if a == nil {
		return nil, ErrSessionNotFound
	}
	return s.submit(ctx, a, reason)
}

func (s *Service) submit(ctx context.Context, a *attempt, reason exam.SubmitReason) (*View, error) {
	a.mu.Lock()
	switch a.state {
	case StateSubmitted:
		defer a.mu.Unlock()
		return a.view(s.now()), nil
	case StateSubmitting:
		wait := a.inflight
		a.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.view(s.now()), a.lastErr
	case StateActive, StateErrored:
	default:
		a.mu.Unlock()
		return nil, ErrNotActive
	}

	done := make(chan struct{})
	a.inflight = done
	a.state = StateSubmitting
	a.lastErr = nil
	in := exam.SubmitInput{
		CompetitionID: a.key.CompetitionID,
		ParticipantID: a.key.ParticipantID,
		Answers:       a.payload(),
		Reason:        reason,
	}
	a.mu.Unlock()

	// a disconnecting client must not abort grading halfway
	gradeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	out, err := s.submitter.Submit(gradeCtx, in)
	cancel()

	a.mu.Lock()
	if err != nil {
		a.state = StateErrored
		a.lastErr = err
		log.Printf("session submit competition=%d participant=%d reason=%s failed: %v", a.key.CompetitionID, a.key.ParticipantID, reason, err)
	} else {
		a.state = StateSubmitted
		a.submission = out
	}
	a.inflight = nil
	close(done)
	v := a.view(s.now())
	a.mu.Unlock()

	if err != nil {
		return v, err
	}
	if derr := s.store.Delete(context.WithoutCancel(ctx), a.key); derr != nil {
		log.Printf("session cleanup competition=%d participant=%d: %v", a.key.CompetitionID, a.key.ParticipantID, derr)
		return v, nil
	}
	s.evictLater(a)
	return v, nil
}

// evictLater drops a from memory after the retention period unless a newer
// attempt replaced it in the meantime.
func (s *Service) evictLater(a *attempt) {
	time.AfterFunc(s.retention, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.attempts[a.key] == a {
			delete(s.attempts, a.key)
		}
	})
}

// commit writes the first snapshot of an attempt. When a concurrent Start
// committed first, its end timestamp and scramble are used instead.
func (s *Service) commit(ctx context.Context, key Key, comp olympiad.Competition, bank []question.Question) (*Snapshot, error) {
	snap := &Snapshot{
		EndsAt:   s.now().Add(comp.Duration()),
		Answers:  map[int64]string{},
		Scramble: s.scramble(comp, bank),
	}
	created, err := s.store.Create(ctx, key, snap)
	if err != nil {
		return nil, err
	}
	if created {
		return snap, nil
	}
	return s.store.Load(ctx, key)
}

func (s *Service) lookup(key Key) *attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[key]
}

// register stores a, unless a live attempt for the same key won the race.
func (s *Service) register(a *attempt) *attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.attempts[a.key]; ok && cur != a {
		cur.mu.Lock()
		live := !cur.state.Terminal()
		cur.mu.Unlock()
		if live {
			return cur
		}
	}
	s.attempts[a.key] = a
	return a
}

func (s *Service) scramble(c olympiad.Competition, bank []question.Question) Scramble {
	order := make([]int64, len(bank))
	for i, q := range bank {
		order[i] = q.ID
	}
	if c.RandomizeQuestions {
		s.shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	if limit := c.QuestionCap(len(bank)); limit > 0 {
		order = order[:limit]
	}

	sc := Scramble{QuestionOrder: order, Choices: map[int64][]string{}, Rights: map[int64][]string{}}
	for _, q := range presented(bank, order) {
		switch b := q.Body.(type) {
		case question.MultipleChoice:
			sc.Choices[q.ID] = s.shuffled(b.Choices)
		case question.Matching:
			sc.Rights[q.ID] = s.shuffled(b.Rights())
		}
	}
	return sc
}

func (s *Service) shuffled(in []string) []string {
	out := append([]string(nil), in...)
	s.shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// presented returns the bank questions named by order, in that order. Ids
// no longer in the bank are dropped.
func presented(bank []question.Question, order []int64) []question.Question {
	byID := make(map[int64]question.Question, len(bank))
	for _, q := range bank {
		byID[q.ID] = q
	}
	out := make([]question.Question, 0, len(order))
	for _, id := range order {
		if q, ok := byID[id]; ok {
			out = append(out, q)
		}
	}
	return out
}

func clamp(cursor, n int) int {
	if cursor < 0 || n == 0 {
		return 0
	}
	if cursor > n-1 {
		return n - 1
	}
	return cursor
}
