package capability

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

var (
	colorPrimary   = [3]int{30, 58, 95}
	colorTextDark  = [3]int{44, 62, 80}
	colorTextMuted = [3]int{127, 140, 141}
)

// Slide is one page of a generated deck.
type Slide struct {
	Title   string   `json:"title"`
	Bullets []string `json:"bullets"`
}

// renderDocument lays out a titled long-form text as an A4 PDF.
func renderDocument(title, body string, generated time.Time) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.SetTitle(title, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pageWidth, _ := pdf.GetPageSize()
	pdf.SetFillColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.Rect(0, 0, pageWidth, 6, "F")

	pdf.SetFont("Arial", "B", 18)
	pdf.SetTextColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.MultiCell(0, 9, tr(title), "", "L", false)

	pdf.SetFont("Arial", "", 9)
	pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
	pdf.CellFormat(0, 6, "Generated "+generated.Format("02 Jan 2006 15:04"), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	for _, para := range paragraphs(body) {
		if heading, ok := markdownHeading(para); ok {
			pdf.SetFont("Arial", "B", 13)
			pdf.MultiCell(0, 7, tr(heading), "", "L", false)
			pdf.Ln(1)
			continue
		}
		pdf.SetFont("Arial", "", 11)
		pdf.MultiCell(0, 6, tr(para), "", "L", false)
		pdf.Ln(3)
	}

	return output(pdf)
}

// renderDeck lays out one landscape page per slide behind a title page.
func renderDeck(title string, slides []Slide) ([]byte, error) {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(25, 20, 25)
	pdf.SetAutoPageBreak(true, 15)
	pdf.SetTitle(title, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pageWidth, pageHeight := pdf.GetPageSize()

	pdf.AddPage()
	pdf.SetFillColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.Rect(0, 0, pageWidth, pageHeight, "F")
	pdf.SetY(pageHeight/2 - 15)
	pdf.SetFont("Arial", "B", 32)
	pdf.SetTextColor(255, 255, 255)
	pdf.MultiCell(0, 14, tr(title), "", "C", false)

	for i, s := range slides {
		pdf.AddPage()
		pdf.SetFillColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
		pdf.Rect(0, 0, pageWidth, 28, "F")

		pdf.SetY(9)
		pdf.SetFont("Arial", "B", 22)
		pdf.SetTextColor(255, 255, 255)
		pdf.CellFormat(0, 10, tr(s.Title), "", 1, "L", false, 0, "")

		pdf.SetY(40)
		pdf.SetFont("Arial", "", 16)
		pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
		for _, b := range s.Bullets {
			pdf.MultiCell(0, 9, tr("- "+b), "", "L", false)
			pdf.Ln(2)
		}

		pdf.SetY(pageHeight - 15)
		pdf.SetFont("Arial", "", 9)
		pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
		pdf.CellFormat(0, 5, fmt.Sprintf("%d / %d", i+1, len(slides)), "", 0, "R", false, 0, "")
	}

	return output(pdf)
}

func output(pdf *fpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("PDF output error: %w", err)
	}
	return buf.Bytes(), nil
}

func paragraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func markdownHeading(p string) (string, bool) {
	if strings.Contains(p, "\n") || !strings.HasPrefix(p, "#") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimLeft(p, "#")), true
}
