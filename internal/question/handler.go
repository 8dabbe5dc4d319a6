package question

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"olympiad/internal/app/apiresp"

	"github.com/go-chi/chi/v5"
)

const (
	maxMediaBytes  = 50 << 20
	maxImportBytes = 10 << 20
)

type Handler struct {
	svc   questionService
	media mediaStore
}

type questionService interface {
	List(ctx context.Context, competitionID int64) ([]Question, error)
	Create(ctx context.Context, in UpsertInput) (*Mutation, error)
	Update(ctx context.Context, in UpsertInput) (*Mutation, error)
	Delete(ctx context.Context, competitionID, questionID int64) (*Mutation, error)
	ImportExcel(ctx context.Context, competitionID int64, r io.Reader) (*ImportReport, error)
}

type mediaStore interface {
	Put(ctx context.Context, data []byte, contentType, folder string) (string, error)
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type upsertQuestionRequest struct {
	SeqNo         int      `json:"seq_no"`
	Prompt        string   `json:"prompt"`
	Type          Kind     `json:"type"`
	CorrectAnswer string   `json:"correct_answer"`
	Choices       []string `json:"choices"`
	MatchingPairs []Pair   `json:"matching_pairs"`
	Media         *Media   `json:"media"`
}

func NewHandler(svc questionService, media mediaStore) *Handler {
	return &Handler{svc: svc, media: media}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	competitionID, ok := parseID(w, r, "id", "invalid competition id")
	if !ok {
		return
	}
	items, err := h.svc.List(r.Context(), competitionID)
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	competitionID, ok := parseID(w, r, "id", "invalid competition id")
	if !ok {
		return
	}
	var req upsertQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}
	out, err := h.svc.Create(r.Context(), req.toInput(competitionID, 0))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: out})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	competitionID, ok := parseID(w, r, "id", "invalid competition id")
	if !ok {
		return
	}
	questionID, ok := parseID(w, r, "questionID", "invalid question id")
	if !ok {
		return
	}
	var req upsertQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}
	out, err := h.svc.Update(r.Context(), req.toInput(competitionID, questionID))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: out})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	competitionID, ok := parseID(w, r, "id", "invalid competition id")
	if !ok {
		return
	}
	questionID, ok := parseID(w, r, "questionID", "invalid question id")
	if !ok {
		return
	}
	out, err := h.svc.Delete(r.Context(), competitionID, questionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: out})
}

// UploadMedia stores an attachment and returns the key to reference from a
// question's media field.
func (h *Handler) UploadMedia(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMediaBytes)
	if err := r.ParseMultipartForm(maxMediaBytes); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid multipart form"})
		return
	}
	mediaType := MediaType(strings.TrimSpace(r.FormValue("type")))
	switch mediaType {
	case MediaImage, MediaVideo, MediaAudio:
	default:
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "type must be image, video or audio"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "file is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "cannot read file"})
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	key, err := h.media.Put(r.Context(), data, contentType, "media")
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: Media{Type: mediaType, Key: key}})
}

// Import loads questions from an uploaded xlsx workbook and reports per-row
// failures.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	competitionID, ok := parseID(w, r, "id", "invalid competition id")
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid multipart form"})
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "file is required"})
		return
	}
	defer file.Close()

	report, err := h.svc.ImportExcel(r.Context(), competitionID, file)
	if err != nil {
		if errors.Is(err, ErrInvalidWorkbook) {
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
			return
		}
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: report})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidQuestion):
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrQuestionNotFound), errors.Is(err, ErrCompetitionNotFound):
		writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
	default:
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
	}
}

func (req upsertQuestionRequest) toInput(competitionID, questionID int64) UpsertInput {
	return UpsertInput{
		CompetitionID: competitionID,
		QuestionID:    questionID,
		SeqNo:         req.SeqNo,
		Prompt:        req.Prompt,
		Type:          req.Type,
		CorrectAnswer: req.CorrectAnswer,
		Choices:       req.Choices,
		MatchingPairs: req.MatchingPairs,
		Media:         req.Media,
	}
}

func parseID(w http.ResponseWriter, r *http.Request, param, msg string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: msg})
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
