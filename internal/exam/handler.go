package exam

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"olympiad/internal/app/apiresp"
	"olympiad/internal/auth"
	"olympiad/internal/olympiad"

	"github.com/go-chi/chi/v5"
)

type examService interface {
	Submit(ctx context.Context, in SubmitInput) (*Submission, error)
	GetResult(ctx context.Context, competitionID, participantID int64) (*Result, error)
}

type Handler struct {
	svc examService
}

type response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type submitRequest struct {
	Answers map[int64]string `json:"answers"`
	Reason  SubmitReason     `json:"reason"`
}

func NewHandler(svc examService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	competitionID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || competitionID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid competition id"})
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	out, err := h.svc.Submit(r.Context(), SubmitInput{
		CompetitionID: competitionID,
		ParticipantID: user.ID,
		Answers:       req.Answers,
		Reason:        req.Reason,
	})
	if err != nil {
		writeSubmitError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: out})
}

func (h *Handler) Result(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	competitionID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || competitionID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid competition id"})
		return
	}

	res, err := h.svc.GetResult(r.Context(), competitionID, user.ID)
	if err != nil {
		switch {
		case errors.Is(err, ErrResultNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: res})
}

func writeSubmitError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
	case errors.Is(err, olympiad.ErrCompetitionNotFound):
		writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
	case errors.Is(err, olympiad.ErrAlreadyCompleted), errors.Is(err, olympiad.ErrNotPublished), errors.Is(err, ErrNoQuestions):
		writeJSON(w, r, http.StatusConflict, response{OK: false, Error: err.Error()})
	default:
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload response) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
