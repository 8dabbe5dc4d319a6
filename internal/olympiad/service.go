package olympiad

import (
	"context"
	"fmt"
	"html"
	"log"
	"sync"
	"time"

	"olympiad/internal/certificate"
	"olympiad/internal/mail"

	"golang.org/x/sync/errgroup"
)

const (
	defaultCertificateWorkers = 4
	defaultLinkTTL            = 7 * 24 * time.Hour
)

type Store interface {
	Create(ctx context.Context, in CompetitionInput) (*Competition, error)
	Update(ctx context.Context, id int64, in CompetitionInput) (*Competition, error)
	Get(ctx context.Context, id int64) (*Competition, error)
	List(ctx context.Context, publishedOnly bool) ([]Competition, error)
	SetPublished(ctx context.Context, id int64, published bool) error
	SetCompleted(ctx context.Context, id int64, completed bool) error
	ListStandings(ctx context.Context, competitionID int64) ([]Standing, error)
	SavePlacement(ctx context.Context, resultID int64, place int, certificateKey *string) error
}

type CertificateRenderer interface {
	Render(ctx context.Context, in certificate.Input) (string, error)
}

type Notifier interface {
	Send(ctx context.Context, msg mail.Message) error
}

// Objects reads stored certificates back for attachments and links.
type Objects interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Sign(key string, ttl time.Duration) (string, error)
}

type ServiceConfig struct {
	CertificateWorkers int
	Renderer           CertificateRenderer
	Notifier           Notifier
	Objects            Objects
	LinkTTL            time.Duration
	Now                func() time.Time
}

type Service struct {
	store    Store
	renderer CertificateRenderer
	notifier Notifier
	objects  Objects
	workers  int
	linkTTL  time.Duration
	now      func() time.Time

	mu         sync.Mutex
	finalizing map[int64]struct{}
}

func NewService(store Store, cfg ServiceConfig) *Service {
	if cfg.CertificateWorkers <= 0 {
		cfg.CertificateWorkers = defaultCertificateWorkers
	}
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = defaultLinkTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:      store,
		renderer:   cfg.Renderer,
		notifier:   cfg.Notifier,
		objects:    cfg.Objects,
		workers:    cfg.CertificateWorkers,
		linkTTL:    cfg.LinkTTL,
		now:        cfg.Now,
		finalizing: make(map[int64]struct{}),
	}
}

func (s *Service) Create(ctx context.Context, in CompetitionInput) (*Competition, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	return s.store.Create(ctx, in)
}

func (s *Service) Update(ctx context.Context, id int64, in CompetitionInput) (*Competition, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	return s.store.Update(ctx, id, in)
}

func (s *Service) Get(ctx context.Context, id int64) (*Competition, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, publishedOnly bool) ([]Competition, error) {
	return s.store.List(ctx, publishedOnly)
}

// Publish opens a draft for attempts. Publishing an already published
// competition is a no-op.
func (s *Service) Publish(ctx context.Context, id int64) (*Competition, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.IsCompleted {
		return nil, ErrAlreadyCompleted
	}
	if c.IsPublished {
		return c, nil
	}
	if err := s.store.SetPublished(ctx, id, true); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, id)
}

// Reopen clears the completed flag. Places, certificates and scores stay
// until the next finalization overwrites them.
func (s *Service) Reopen(ctx context.Context, id int64) (*Competition, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.IsCompleted {
		return nil, ErrNotCompleted
	}
	if err := s.store.SetCompleted(ctx, id, false); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, id)
}

// Standings returns the ranked results. Finalized entries keep their stored
// place; before finalization the place is the provisional rank.
func (s *Service) Standings(ctx context.Context, id int64) ([]Standing, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.store.ListStandings(ctx, id)
	if err != nil {
		return nil, err
	}
	stored := make(map[int64]*int, len(rows))
	for _, row := range rows {
		stored[row.ResultID] = row.Place
	}
	ranked := Rank(rows)
	for i := range ranked {
		if p := stored[ranked[i].ResultID]; p != nil {
			ranked[i].Place = p
		}
		if ranked[i].CertificateKey != nil && s.objects != nil {
			if url, err := s.objects.Sign(*ranked[i].CertificateKey, s.linkTTL); err == nil {
				ranked[i].CertificateURL = url
			}
		}
	}
	return ranked, nil
}

type OutcomeStatus string

const (
	OutcomeOK    OutcomeStatus = "ok"
	OutcomeError OutcomeStatus = "error"
)

type Outcome struct {
	ResultID        int64         `json:"result_id"`
	ParticipantID   int64         `json:"participant_id"`
	ParticipantName string        `json:"participant_name"`
	Place           int           `json:"place"`
	Score           int           `json:"score"`
	CertificateKey  *string       `json:"certificate_key"`
	Status          OutcomeStatus `json:"status"`
	Error           string        `json:"error,omitempty"`
	Notified        bool          `json:"notified"`
	NotifyError     string        `json:"notify_error,omitempty"`
}

type FinalizeReport struct {
	CompetitionID int64     `json:"competition_id"`
	Outcomes      []Outcome `json:"outcomes"`
	Certified     int       `json:"certified"`
	Failed        int       `json:"failed"`
	CompletedAt   time.Time `json:"completed_at"`
}

// Finalize ranks every result, issues certificates and notifications, and
// marks the competition completed. A certificate or email failure only
// affects that participant's outcome. A failure to persist placements
// aborts before the competition is marked completed.
func (s *Service) Finalize(ctx context.Context, id int64) (*FinalizeReport, error) {
	if !s.beginFinalize(id) {
		return nil, ErrFinalizeInProgress
	}
	defer s.endFinalize(id)

	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.IsCompleted {
		return nil, ErrAlreadyCompleted
	}

	rows, err := s.store.ListStandings(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}
	ranked := Rank(rows)
	date := s.now()

	outcomes := make([]Outcome, len(ranked))
	for i, st := range ranked {
		outcomes[i] = Outcome{
			ResultID:        st.ResultID,
			ParticipantID:   st.ParticipantID,
			ParticipantName: st.ParticipantName,
			Place:           *st.Place,
			Score:           st.Score,
			Status:          OutcomeOK,
		}
	}

	s.renderCertificates(ctx, c, ranked, outcomes, date)

	for _, o := range outcomes {
		if err := s.store.SavePlacement(ctx, o.ResultID, o.Place, o.CertificateKey); err != nil {
			return nil, err
		}
	}

	s.notifyParticipants(ctx, c, ranked, outcomes)

	if err := s.store.SetCompleted(ctx, id, true); err != nil {
		return nil, fmt.Errorf("mark competition completed: %w", err)
	}

	report := &FinalizeReport{CompetitionID: id, Outcomes: outcomes, CompletedAt: date}
	for _, o := range outcomes {
		if o.CertificateKey != nil {
			report.Certified++
		} else {
			report.Failed++
		}
	}
	log.Printf("competition %d finalized: participants=%d certified=%d failed=%d", id, len(outcomes), report.Certified, report.Failed)
	return report, nil
}

func (s *Service) renderCertificates(ctx context.Context, c *Competition, ranked []Standing, outcomes []Outcome, date time.Time) {
	if s.renderer == nil {
		for i := range outcomes {
			outcomes[i].Status = OutcomeError
			outcomes[i].Error = "certificate renderer not configured"
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, st := range ranked {
		g.Go(func() error {
			key, err := s.renderer.Render(ctx, certificate.Input{
				ParticipantName:  st.ParticipantName,
				CompetitionTitle: c.Title,
				Description:      c.Description,
				Difficulty:       c.Difficulty,
				Score:            st.Score,
				Place:            *st.Place,
				Date:             date,
			})
			if err != nil {
				log.Printf("certificate failed competition=%d participant=%d: %v", c.ID, st.ParticipantID, err)
				outcomes[i].Status = OutcomeError
				outcomes[i].Error = err.Error()
				return nil
			}
			outcomes[i].CertificateKey = &key
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Service) notifyParticipants(ctx context.Context, c *Competition, ranked []Standing, outcomes []Outcome) {
	if s.notifier == nil {
		return
	}
	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, st := range ranked {
		if st.Email == "" {
			continue
		}
		g.Go(func() error {
			msg := s.resultMessage(ctx, c, st, outcomes[i])
			if err := s.notifier.Send(ctx, msg); err != nil {
				log.Printf("notify failed competition=%d participant=%d: %v", c.ID, st.ParticipantID, err)
				outcomes[i].NotifyError = err.Error()
				return nil
			}
			outcomes[i].Notified = true
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Service) resultMessage(ctx context.Context, c *Competition, st Standing, o Outcome) mail.Message {
	body := fmt.Sprintf(
		"<p>Dear %s,</p><p>The results of <strong>%s</strong> are final. You scored %d%% and placed %d.</p>",
		html.EscapeString(st.ParticipantName), html.EscapeString(c.Title), o.Score, o.Place,
	)
	msg := mail.Message{
		To:      st.Email,
		Subject: fmt.Sprintf("Your result in %s", c.Title),
	}
	if o.CertificateKey != nil && s.objects != nil {
		if url, err := s.objects.Sign(*o.CertificateKey, s.linkTTL); err == nil {
			body += fmt.Sprintf(`<p><a href="%s">Download your certificate</a></p>`, html.EscapeString(url))
		}
		if data, err := s.objects.Get(ctx, *o.CertificateKey); err == nil {
			msg.Attachments = append(msg.Attachments, mail.Attachment{
				Filename:    "certificate.pdf",
				ContentType: "application/pdf",
				Data:        data,
			})
		} else {
			log.Printf("attach certificate competition=%d participant=%d: %v", c.ID, st.ParticipantID, err)
		}
	}
	msg.HTML = body
	return msg
}

func (s *Service) beginFinalize(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.finalizing[id]; busy {
		return false
	}
	s.finalizing[id] = struct{}{}
	return true
}

func (s *Service) endFinalize(id int64) {
	s.mu.Lock()
	delete(s.finalizing, id)
	s.mu.Unlock()
}
