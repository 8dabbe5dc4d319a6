package olympiad

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"olympiad/internal/app/apiresp"
	"olympiad/internal/auth"

	"github.com/go-chi/chi/v5"
)

type competitionService interface {
	Create(ctx context.Context, in CompetitionInput) (*Competition, error)
	Update(ctx context.Context, id int64, in CompetitionInput) (*Competition, error)
	Get(ctx context.Context, id int64) (*Competition, error)
	List(ctx context.Context, publishedOnly bool) ([]Competition, error)
	Publish(ctx context.Context, id int64) (*Competition, error)
	Reopen(ctx context.Context, id int64) (*Competition, error)
	Finalize(ctx context.Context, id int64) (*FinalizeReport, error)
	Standings(ctx context.Context, id int64) ([]Standing, error)
}

type Handler struct {
	svc competitionService
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type competitionRequest struct {
	Title                   string `json:"title"`
	Description             string `json:"description"`
	Difficulty              string `json:"difficulty"`
	DurationSeconds         int    `json:"duration_seconds"`
	RandomizeQuestions      bool   `json:"randomize_questions"`
	QuestionsPerParticipant int    `json:"questions_per_participant"`
}

func NewHandler(svc competitionService) *Handler {
	return &Handler{svc: svc}
}

// List shows published competitions to participants and everything to admins.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.CurrentUser(r.Context())
	items, err := h.svc.List(r.Context(), !user.IsAdmin())
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	c, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	user, _ := auth.CurrentUser(r.Context())
	if !c.IsPublished && !user.IsAdmin() {
		writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: ErrCompetitionNotFound.Error()})
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: c})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req competitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}
	c, err := h.svc.Create(r.Context(), req.toInput())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: c})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req competitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}
	c, err := h.svc.Update(r.Context(), id, req.toInput())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: c})
}

func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Publish)
}

func (h *Handler) Reopen(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Reopen)
}

func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	report, err := h.svc.Finalize(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: report})
}

func (h *Handler) Standings(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	items, err := h.svc.Standings(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64) (*Competition, error)) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	c, err := fn(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: c})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrCompetitionNotFound):
		writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrAlreadyCompleted), errors.Is(err, ErrNotCompleted), errors.Is(err, ErrFinalizeInProgress):
		writeJSON(w, r, http.StatusConflict, apiResponse{OK: false, Error: err.Error()})
	default:
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
	}
}

func (req competitionRequest) toInput() CompetitionInput {
	return CompetitionInput{
		Title:                   req.Title,
		Description:             req.Description,
		Difficulty:              req.Difficulty,
		DurationSeconds:         req.DurationSeconds,
		RandomizeQuestions:      req.RandomizeQuestions,
		QuestionsPerParticipant: req.QuestionsPerParticipant,
	}
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid competition id"})
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload apiResponse) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
