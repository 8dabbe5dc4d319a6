package report

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"olympiad/internal/olympiad"

	"github.com/go-chi/chi/v5"
	"github.com/xuri/excelize/v2"
)

type fakeSource struct {
	comp      *olympiad.Competition
	standings []olympiad.Standing
}

func (f *fakeSource) Get(ctx context.Context, id int64) (*olympiad.Competition, error) {
	if f.comp == nil || f.comp.ID != id {
		return nil, olympiad.ErrCompetitionNotFound
	}
	return f.comp, nil
}

func (f *fakeSource) Standings(ctx context.Context, id int64) ([]olympiad.Standing, error) {
	return f.standings, nil
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func sampleSource() *fakeSource {
	at := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	return &fakeSource{
		comp: &olympiad.Competition{ID: 3, Title: "Spring Olympiad", IsPublished: true, IsCompleted: true},
		standings: []olympiad.Standing{
			{ResultID: 1, ParticipantName: "Ann", Email: "ann@example.test", Score: 90, CompletedAt: at, Place: intPtr(1), CertificateKey: strPtr("certificates/a.pdf")},
			{ResultID: 2, ParticipantName: "Bob", Email: "bob@example.test", Score: 65, CompletedAt: at.Add(time.Minute), Place: intPtr(2)},
			{ResultID: 3, ParticipantName: "Cid", Email: "cid@example.test", Score: 40, CompletedAt: at.Add(2 * time.Minute), Place: intPtr(3), CertificateKey: strPtr("certificates/c.pdf")},
		},
	}
}

func TestSummaryByCompetition(t *testing.T) {
	svc := NewService(sampleSource())
	sum, err := svc.SummaryByCompetition(context.Background(), 3)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Participants != 3 || sum.HighestScore != 90 || sum.LowestScore != 40 || sum.Certified != 2 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if sum.AverageScore != 65 || sum.Status != olympiad.StatusCompleted {
		t.Fatalf("unexpected average or status %+v", sum)
	}
}

func TestSummaryWithoutResults(t *testing.T) {
	src := sampleSource()
	src.standings = nil
	sum, err := NewService(src).SummaryByCompetition(context.Background(), 3)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Participants != 0 || sum.AverageScore != 0 || sum.LowestScore != 0 {
		t.Fatalf("unexpected empty summary %+v", sum)
	}
}

func TestExportStandingsExcel(t *testing.T) {
	data, err := NewService(sampleSource()).ExportStandingsExcel(context.Background(), 3)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows("Standings")
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 4 || rows[0][0] != "place" || rows[1][1] != "Ann" || rows[2][5] != "no" || rows[3][3] != "40" {
		t.Fatalf("unexpected rows %v", rows)
	}
	name, err := f.GetCellValue("Summary", "B1")
	if err != nil || name != "Spring Olympiad" {
		t.Fatalf("unexpected summary sheet: %q %v", name, err)
	}
}

func TestExportHandler(t *testing.T) {
	h := NewHandler(NewService(sampleSource()))
	tests := []struct {
		name string
		id   string
		code int
	}{
		{name: "ok", id: "3", code: http.StatusOK},
		{name: "unknown", id: "8", code: http.StatusNotFound},
		{name: "invalid", id: "x", code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/competitions/"+tt.id+"/standings.xlsx", nil)
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("id", tt.id)
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
			rr := httptest.NewRecorder()
			h.ExportStandings(rr, req)
			if rr.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, rr.Code)
			}
			if tt.code == http.StatusOK && rr.Header().Get("Content-Disposition") != `attachment; filename="standings-3.xlsx"` {
				t.Fatalf("unexpected disposition %q", rr.Header().Get("Content-Disposition"))
			}
		})
	}
}

func TestSummaryHandlerHidesInternalErrors(t *testing.T) {
	h := NewHandler(&failingService{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/competitions/3/summary", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "3")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rr := httptest.NewRecorder()
	h.Summary(rr, req)
	if rr.Code != http.StatusInternalServerError || bytes.Contains(rr.Body.Bytes(), []byte("db gone")) {
		t.Fatalf("unexpected response %d %s", rr.Code, rr.Body.String())
	}
}

type failingService struct{}

func (failingService) SummaryByCompetition(ctx context.Context, competitionID int64) (*CompetitionSummary, error) {
	return nil, errors.New("db gone")
}

func (failingService) ExportStandingsExcel(ctx context.Context, competitionID int64) ([]byte, error) {
	return nil, errors.New("db gone")
}
