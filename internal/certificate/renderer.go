package certificate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

var ErrInvalidInput = errors.New("invalid certificate input")

type Input struct {
	ParticipantName  string
	CompetitionTitle string
	Description      string
	Difficulty       string
	Score            int
	Place            int
	Date             time.Time
}

type objectStore interface {
	Put(ctx context.Context, data []byte, contentType, folder string) (string, error)
}

// Renderer draws a landscape A4 certificate and stores it as a PDF.
type Renderer struct {
	store  objectStore
	issuer string
}

func NewRenderer(store objectStore, issuer string) *Renderer {
	if strings.TrimSpace(issuer) == "" {
		issuer = "Olympiad Organizing Committee"
	}
	return &Renderer{store: store, issuer: issuer}
}

// Render returns the storage key of the stored certificate.
func (r *Renderer) Render(ctx context.Context, in Input) (string, error) {
	data, err := r.draw(in)
	if err != nil {
		return "", err
	}
	key, err := r.store.Put(ctx, data, "application/pdf", "certificates")
	if err != nil {
		return "", fmt.Errorf("store certificate: %w", err)
	}
	return key, nil
}

// draw produces the PDF bytes without storing them.
func (r *Renderer) draw(in Input) ([]byte, error) {
	if strings.TrimSpace(in.ParticipantName) == "" || strings.TrimSpace(in.CompetitionTitle) == "" {
		return nil, fmt.Errorf("%w: participant name and competition title are required", ErrInvalidInput)
	}
	if in.Place <= 0 {
		return nil, fmt.Errorf("%w: place must be positive", ErrInvalidInput)
	}
	if in.Date.IsZero() {
		in.Date = time.Now()
	}

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("Certificate - "+in.CompetitionTitle, true)
	pdf.SetAuthor(r.issuer, true)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	w, h := pdf.GetPageSize()

	pdf.SetDrawColor(28, 63, 120)
	pdf.SetLineWidth(2)
	pdf.Rect(10, 10, w-20, h-20, "D")
	pdf.SetLineWidth(0.5)
	pdf.Rect(15, 15, w-30, h-30, "D")

	pdf.SetTextColor(28, 63, 120)
	pdf.SetFont("Helvetica", "B", 36)
	pdf.SetXY(15, 32)
	pdf.CellFormat(w-30, 16, tr("CERTIFICATE"), "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 14)
	pdf.SetTextColor(60, 60, 60)
	pdf.SetX(15)
	pdf.CellFormat(w-30, 10, tr(placeLine(in.Place)), "", 1, "C", false, 0, "")

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 14)
	pdf.SetX(15)
	pdf.CellFormat(w-30, 8, tr("is awarded to"), "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "B", 28)
	pdf.SetTextColor(20, 20, 20)
	pdf.SetX(15)
	pdf.CellFormat(w-30, 16, tr(in.ParticipantName), "", 1, "C", false, 0, "")

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "", 14)
	pdf.SetTextColor(60, 60, 60)
	pdf.SetX(15)
	pdf.CellFormat(w-30, 8, tr("for participating in"), "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetX(15)
	pdf.CellFormat(w-30, 10, tr(in.CompetitionTitle), "", 1, "C", false, 0, "")

	if d := strings.TrimSpace(in.Description); d != "" {
		pdf.SetFont("Helvetica", "", 11)
		pdf.SetX(40)
		pdf.MultiCell(w-80, 6, tr(d), "", "C", false)
	}

	details := fmt.Sprintf("Score: %d / 100", in.Score)
	if diff := strings.TrimSpace(in.Difficulty); diff != "" {
		details += "   |   Difficulty: " + diff
	}
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "", 12)
	pdf.SetX(15)
	pdf.CellFormat(w-30, 8, tr(details), "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	pdf.SetXY(30, h-40)
	pdf.CellFormat(80, 6, tr(in.Date.Format("2 January 2006")), "T", 0, "C", false, 0, "")
	pdf.SetXY(w-110, h-40)
	pdf.CellFormat(80, 6, tr(r.issuer), "T", 0, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	return buf.Bytes(), nil
}

func placeLine(place int) string {
	return ordinal(place) + " place"
}

func ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
