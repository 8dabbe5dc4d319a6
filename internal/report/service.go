package report

import (
	"bytes"
	"context"
	"fmt"
	"math"

	"olympiad/internal/olympiad"

	"github.com/xuri/excelize/v2"
)

type standingsSource interface {
	Get(ctx context.Context, id int64) (*olympiad.Competition, error)
	Standings(ctx context.Context, id int64) ([]olympiad.Standing, error)
}

type Service struct {
	src standingsSource
}

type CompetitionSummary struct {
	CompetitionID int64           `json:"competition_id"`
	Title         string          `json:"title"`
	Status        olympiad.Status `json:"status"`
	Participants  int             `json:"participants"`
	AverageScore  float64         `json:"average_score"`
	HighestScore  int             `json:"highest_score"`
	LowestScore   int             `json:"lowest_score"`
	Certified     int             `json:"certified"`
}

func NewService(src standingsSource) *Service {
	return &Service{src: src}
}

func (s *Service) SummaryByCompetition(ctx context.Context, competitionID int64) (*CompetitionSummary, error) {
	c, standings, err := s.load(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	return summarize(c, standings), nil
}

func summarize(c *olympiad.Competition, standings []olympiad.Standing) *CompetitionSummary {
	out := &CompetitionSummary{
		CompetitionID: c.ID,
		Title:         c.Title,
		Status:        c.Status(),
		Participants:  len(standings),
	}
	if len(standings) == 0 {
		return out
	}
	total := 0
	out.LowestScore = standings[0].Score
	for _, st := range standings {
		total += st.Score
		if st.Score > out.HighestScore {
			out.HighestScore = st.Score
		}
		if st.Score < out.LowestScore {
			out.LowestScore = st.Score
		}
		if st.CertificateKey != nil {
			out.Certified++
		}
	}
	out.AverageScore = math.Round(float64(total)/float64(len(standings))*100) / 100
	return out
}

// ExportStandingsExcel writes the ranked standings on the first sheet and the
// summary on a second one.
func (s *Service) ExportStandingsExcel(ctx context.Context, competitionID int64) ([]byte, error) {
	c, standings, err := s.load(ctx, competitionID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := "Standings"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}
	headers := []string{"place", "participant", "email", "score", "completed_at", "certificate"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, st := range standings {
		row := i + 2
		place := ""
		if st.Place != nil {
			place = fmt.Sprint(*st.Place)
		}
		certificate := "no"
		if st.CertificateKey != nil {
			certificate = "yes"
		}
		values := []any{
			place,
			st.ParticipantName,
			st.Email,
			st.Score,
			st.CompletedAt.Format("2006-01-02 15:04:05"),
			certificate,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetColWidth(sheet, "A", "F", 22)

	sum := summarize(c, standings)
	if _, err := f.NewSheet("Summary"); err != nil {
		return nil, fmt.Errorf("add summary sheet: %w", err)
	}
	rows := [][]any{
		{"competition", sum.Title},
		{"status", string(sum.Status)},
		{"participants", sum.Participants},
		{"average_score", sum.AverageScore},
		{"highest_score", sum.HighestScore},
		{"lowest_score", sum.LowestScore},
		{"certified", sum.Certified},
	}
	for i, r := range rows {
		for col, v := range r {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+1)
			_ = f.SetCellValue("Summary", cell, v)
		}
	}
	_ = f.SetColWidth("Summary", "A", "B", 22)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Service) load(ctx context.Context, competitionID int64) (*olympiad.Competition, []olympiad.Standing, error) {
	c, err := s.src.Get(ctx, competitionID)
	if err != nil {
		return nil, nil, err
	}
	standings, err := s.src.Standings(ctx, competitionID)
	if err != nil {
		return nil, nil, fmt.Errorf("load standings: %w", err)
	}
	return c, standings, nil
}
