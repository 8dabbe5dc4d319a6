package session

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"olympiad/internal/answer"
	"olympiad/internal/app/apiresp"
	"olympiad/internal/auth"
	"olympiad/internal/exam"
	"olympiad/internal/olympiad"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

type sessionService interface {
	Start(ctx context.Context, key Key) (*View, error)
	Tick(ctx context.Context, key Key) (*View, error)
	RecordAnswer(ctx context.Context, key Key, questionID int64, raw answer.Raw) (*View, error)
	Advance(ctx context.Context, key Key) (*View, error)
	Retreat(ctx context.Context, key Key) (*View, error)
	Submit(ctx context.Context, key Key, reason exam.SubmitReason) (*View, error)
}

type Handler struct {
	svc      sessionService
	upgrader websocket.Upgrader
	interval time.Duration
}

type response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// NewHandler serves the attempt API. interval is how often the stream pushes
// the remaining time; zero means once per second.
func NewHandler(svc sessionService, interval time.Duration) *Handler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Handler{
		svc:      svc,
		interval: interval,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
	}
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(ctx context.Context, key Key) (*View, error) {
		return h.svc.Start(ctx, key)
	})
}

// Current doubles as the timer check: an expired attempt is submitted here.
func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.svc.Tick)
}

func (h *Handler) Answer(w http.ResponseWriter, r *http.Request) {
	questionID, err := strconv.ParseInt(chi.URLParam(r, "questionID"), 10, 64)
	if err != nil || questionID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid question id"})
		return
	}
	var raw answer.Raw
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}
	h.serve(w, r, func(ctx context.Context, key Key) (*View, error) {
		return h.svc.RecordAnswer(ctx, key, questionID, raw)
	})
}

func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.svc.Advance)
}

func (h *Handler) Retreat(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.svc.Retreat)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(ctx context.Context, key Key) (*View, error) {
		return h.svc.Submit(ctx, key, exam.ReasonManual)
	})
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, key Key) (*View, error)) {
	key, ok := sessionKey(w, r)
	if !ok {
		return
	}
	v, err := op(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: v})
}

type inboundMessage struct {
	Type       string            `json:"type"`
	QuestionID int64             `json:"question_id,omitempty"`
	Value      string            `json:"value,omitempty"`
	Pairs      map[string]string `json:"pairs,omitempty"`
}

type outboundMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type tickPayload struct {
	State            State `json:"state"`
	RemainingSeconds int   `json:"remaining_seconds"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// Stream upgrades to a websocket that pushes the remaining time on every
// interval and the full view once the attempt reaches a terminal state. The
// client may send answer, advance, retreat and submit messages.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	key, ok := sessionKey(w, r)
	if !ok {
		return
	}
	v, err := h.svc.Tick(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("session stream upgrade competition=%d participant=%d: %v", key.CompetitionID, key.ParticipantID, err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	send := make(chan outboundMessage, 16)
	writerDone := make(chan struct{})
	tickerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("session stream write: %v", err)
				cancel()
				_ = conn.Close()
				return
			}
		}
	}()

	push := func(msg outboundMessage) bool {
		select {
		case send <- msg:
			return true
		case <-ctx.Done():
			return false
		}
	}

	push(outboundMessage{Type: "view", Payload: v})

	go func() {
		defer close(tickerDone)
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			v, err := h.svc.Tick(ctx, key)
			if err != nil && v == nil {
				push(outboundMessage{Type: "error", Payload: errorPayload{Message: publicMessage(err)}})
				return
			}
			if v.State.Terminal() {
				push(outboundMessage{Type: "state", Payload: v})
				return
			}
			if !push(outboundMessage{Type: "tick", Payload: tickPayload{State: v.State, RemainingSeconds: v.RemainingSeconds}}) {
				return
			}
		}
	}()

	for {
		var in inboundMessage
		if err := conn.ReadJSON(&in); err != nil {
			break
		}
		var (
			out *View
			err error
		)
		switch in.Type {
		case "answer":
			out, err = h.svc.RecordAnswer(ctx, key, in.QuestionID, answer.Raw{Value: in.Value, Pairs: in.Pairs})
		case "advance":
			out, err = h.svc.Advance(ctx, key)
		case "retreat":
			out, err = h.svc.Retreat(ctx, key)
		case "submit":
			out, err = h.svc.Submit(ctx, key, exam.ReasonManual)
		default:
			err = errors.New("unsupported message type")
		}
		if err != nil {
			push(outboundMessage{Type: "error", Payload: errorPayload{Message: publicMessage(err)}})
			continue
		}
		msgType := "view"
		if out.State.Terminal() {
			msgType = "state"
		}
		push(outboundMessage{Type: msgType, Payload: out})
	}

	cancel()
	<-tickerDone
	close(send)
	<-writerDone
}

func sessionKey(w http.ResponseWriter, r *http.Request) (Key, bool) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return Key{}, false
	}
	competitionID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || competitionID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid competition id"})
		return Key{}, false
	}
	return Key{CompetitionID: competitionID, ParticipantID: user.ID}, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, answer.ErrInvalidAnswer), errors.Is(err, ErrQuestionNotPresented):
		return http.StatusBadRequest
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, olympiad.ErrCompetitionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotActive), errors.Is(err, ErrTimeExpired), errors.Is(err, exam.ErrNoQuestions),
		errors.Is(err, olympiad.ErrNotPublished), errors.Is(err, olympiad.ErrAlreadyCompleted):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func publicMessage(err error) string {
	if statusFor(err) == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrTimeExpired):
		return "time_expired"
	case errors.Is(err, ErrNotActive):
		return "session_not_active"
	case errors.Is(err, exam.ErrNoQuestions):
		return "no_questions"
	case errors.Is(err, ErrQuestionNotPresented):
		return "question_not_presented"
	default:
		return ""
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiresp.WriteErrorCode(w, r, statusFor(err), errorCode(err), publicMessage(err))
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload response) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
