package question

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

var ErrInvalidWorkbook = errors.New("invalid workbook")

type ImportRowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

type ImportReport struct {
	TotalRows   int              `json:"total_rows"`
	SuccessRows int              `json:"success_rows"`
	FailedRows  int              `json:"failed_rows"`
	Errors      []ImportRowError `json:"errors"`
	Warning     string           `json:"warning,omitempty"`
}

// ImportExcel appends one question per data row of the first sheet. Columns
// are matched by header: prompt, type, correct_answer, choices ("|"
// separated), matching_pairs ("left=right|left=right") and seq_no. A bad row
// is reported and skipped; the rest are still imported.
func (s *Service) ImportExcel(ctx context.Context, competitionID int64, r io.Reader) (*ImportReport, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWorkbook, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: no sheets", ErrInvalidWorkbook)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: no data rows found", ErrInvalidWorkbook)
	}

	header := map[string]int{}
	for i, h := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range []string{"prompt", "type"} {
		if _, ok := header[col]; !ok {
			return nil, fmt.Errorf("%w: missing required column: %s", ErrInvalidWorkbook, col)
		}
	}

	report := &ImportReport{Errors: make([]ImportRowError, 0)}
	fail := func(row int, err error) {
		report.FailedRows++
		report.Errors = append(report.Errors, ImportRowError{Row: row, Error: err.Error()})
	}
	for i := 1; i < len(rows); i++ {
		rowNo := i + 1
		row := rows[i]
		get := func(key string) string {
			idx, ok := header[key]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}
		if get("prompt") == "" && get("type") == "" {
			continue
		}
		report.TotalRows++

		in := UpsertInput{
			CompetitionID: competitionID,
			Prompt:        get("prompt"),
			Type:          Kind(strings.ToLower(get("type"))),
			CorrectAnswer: get("correct_answer"),
			Choices:       splitList(get("choices")),
		}
		if raw := get("seq_no"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				fail(rowNo, fmt.Errorf("%w: seq_no must be a number", ErrInvalidQuestion))
				continue
			}
			in.SeqNo = n
		} else {
			in.SeqNo = i
		}
		pairs, err := parsePairs(get("matching_pairs"))
		if err != nil {
			fail(rowNo, err)
			continue
		}
		in.MatchingPairs = pairs

		q, err := buildQuestion(in)
		if err != nil {
			fail(rowNo, err)
			continue
		}
		if _, err := s.repo.Create(ctx, q); err != nil {
			if isForeignKeyViolation(err) {
				return nil, ErrCompetitionNotFound
			}
			log.Printf("question import: competition %d row %d: %v", competitionID, rowNo, err)
			fail(rowNo, errors.New("could not store question"))
			continue
		}
		report.SuccessRows++
	}

	if report.SuccessRows > 0 {
		report.Warning = s.afterMutation(ctx, competitionID, nil).Warning
	}
	return report, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parsePairs(raw string) ([]Pair, error) {
	items := splitList(raw)
	if len(items) == 0 {
		return nil, nil
	}
	out := make([]Pair, 0, len(items))
	for _, it := range items {
		left, right, ok := strings.Cut(it, "=")
		if !ok {
			return nil, fmt.Errorf("%w: matching pair %q must be left=right", ErrInvalidQuestion, it)
		}
		out = append(out, Pair{Left: strings.TrimSpace(left), Right: strings.TrimSpace(right)})
	}
	return out, nil
}
