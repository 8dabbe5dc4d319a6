package question

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

type mockQuestionService struct {
	listFn   func(ctx context.Context, competitionID int64) ([]Question, error)
	createFn func(ctx context.Context, in UpsertInput) (*Mutation, error)
	updateFn func(ctx context.Context, in UpsertInput) (*Mutation, error)
	deleteFn func(ctx context.Context, competitionID, questionID int64) (*Mutation, error)
	importFn func(ctx context.Context, competitionID int64, r io.Reader) (*ImportReport, error)
}

func (m *mockQuestionService) ImportExcel(ctx context.Context, competitionID int64, r io.Reader) (*ImportReport, error) {
	if m.importFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.importFn(ctx, competitionID, r)
}

func (m *mockQuestionService) List(ctx context.Context, competitionID int64) ([]Question, error) {
	if m.listFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listFn(ctx, competitionID)
}

func (m *mockQuestionService) Create(ctx context.Context, in UpsertInput) (*Mutation, error) {
	if m.createFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.createFn(ctx, in)
}

func (m *mockQuestionService) Update(ctx context.Context, in UpsertInput) (*Mutation, error) {
	if m.updateFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.updateFn(ctx, in)
}

func (m *mockQuestionService) Delete(ctx context.Context, competitionID, questionID int64) (*Mutation, error) {
	if m.deleteFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.deleteFn(ctx, competitionID, questionID)
}

type memoryMedia struct {
	stored map[string][]byte
}

func (m *memoryMedia) Put(ctx context.Context, data []byte, contentType, folder string) (string, error) {
	key := folder + "/object"
	m.stored[key] = data
	return key, nil
}

func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestCreateQuestionMapsValidationError(t *testing.T) {
	h := NewHandler(&mockQuestionService{
		createFn: func(ctx context.Context, in UpsertInput) (*Mutation, error) {
			if in.CompetitionID != 5 || in.Type != KindMultipleChoice {
				t.Fatalf("unexpected input: %+v", in)
			}
			return nil, ErrInvalidQuestion
		},
	}, nil)

	body := []byte(`{"prompt":"2+2","type":"multiple_choice","choices":["4"],"correct_answer":"4"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/competitions/5/questions", bytes.NewReader(body))
	req = withChiParam(req, "id", "5")
	w := httptest.NewRecorder()
	h.Create(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", w.Code, w.Body.String())
	}
}

func TestUpdateQuestionReturnsWarning(t *testing.T) {
	h := NewHandler(&mockQuestionService{
		updateFn: func(ctx context.Context, in UpsertInput) (*Mutation, error) {
			if in.QuestionID != 11 {
				t.Fatalf("expected question 11, got %d", in.QuestionID)
			}
			return &Mutation{
				Question: &Question{ID: 11, CompetitionID: 5, Prompt: "2+2", Body: Text{CorrectAnswer: "4"}},
				Warning:  mutationWarning,
			}, nil
		},
	}, nil)

	body := []byte(`{"prompt":"2+2","type":"text","correct_answer":"4"}`)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/competitions/5/questions/11", bytes.NewReader(body))
	req = withChiParam(req, "id", "5")
	req = withChiParam(req, "questionID", "11")
	w := httptest.NewRecorder()
	h.Update(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	data, _ := decodeBody(t, w)["data"].(map[string]interface{})
	if data["warning"] != mutationWarning {
		t.Fatalf("expected warning in response, got %v", data)
	}
	q, _ := data["question"].(map[string]interface{})
	if q["type"] != "text" {
		t.Fatalf("expected type text, got %v", q["type"])
	}
}

func TestDeleteQuestionNotFound(t *testing.T) {
	h := NewHandler(&mockQuestionService{
		deleteFn: func(ctx context.Context, competitionID, questionID int64) (*Mutation, error) {
			return nil, ErrQuestionNotFound
		},
	}, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/admin/competitions/5/questions/99", nil)
	req = withChiParam(req, "id", "5")
	req = withChiParam(req, "questionID", "99")
	w := httptest.NewRecorder()
	h.Delete(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestListQuestionsRejectsBadID(t *testing.T) {
	h := NewHandler(&mockQuestionService{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/competitions/abc/questions", nil)
	req = withChiParam(req, "id", "abc")
	w := httptest.NewRecorder()
	h.List(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestUploadMediaStoresFile(t *testing.T) {
	media := &memoryMedia{stored: map[string][]byte{}}
	h := NewHandler(&mockQuestionService{}, media)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("type", "image")
	fw, err := mw.CreateFormFile("file", "diagram.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = fw.Write([]byte("\x89PNG\r\n\x1a\nfake"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/media", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.UploadMedia(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", w.Code, w.Body.String())
	}
	if _, ok := media.stored["media/object"]; !ok {
		t.Fatalf("expected file to be stored")
	}
	data, _ := decodeBody(t, w)["data"].(map[string]interface{})
	if data["key"] != "media/object" || data["type"] != "image" {
		t.Fatalf("unexpected response data: %v", data)
	}
}
