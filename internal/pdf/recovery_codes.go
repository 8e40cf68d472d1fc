package pdf

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Generator renders the one-time recovery codes sheet. Interface so handler
// tests can mock it.
type Generator interface {
	GenerateRecoveryCodes(data RecoveryCodesData) ([]byte, error)
}

type RecoveryCodesData struct {
	AccountEmail string
	FullName     string
	Codes        []string
	GeneratedAt  time.Time
}

type DocumentGenerator struct {
	fontName string
}

func NewDocumentGenerator() *DocumentGenerator {
	return &DocumentGenerator{fontName: "Helvetica"}
}

// GenerateRecoveryCodes returns the rendered PDF bytes. The sheet is served
// straight from the verify-setup response and never written to disk: the
// plaintext codes exist only in that response.
func (g *DocumentGenerator) GenerateRecoveryCodes(data RecoveryCodesData) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("CertiChain Recovery Codes", false)
	pdf.SetAuthor("CertiChain", false)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	pdf.SetFont(g.fontName, "B", 18)
	pdf.CellFormat(0, 10, "Two-Factor Recovery Codes", "", 1, "C", false, 0, "")

	pdf.SetFont(g.fontName, "", 12)
	sub := fmt.Sprintf("Generated %s", data.GeneratedAt.Format("02 Jan 2006 15:04 MST"))
	pdf.CellFormat(0, 7, sub, "", 1, "C", false, 0, "")
	g.hr(pdf)

	pdf.Ln(3)
	g.sectionTitle(pdf, "Account")
	g.kvLine(pdf, "Name", data.FullName)
	g.kvLine(pdf, "Email", data.AccountEmail)
	pdf.Ln(2)
	g.hr(pdf)

	g.sectionTitle(pdf, "Codes")
	pdf.SetFont(g.fontName, "", 11)
	intro := "Each code signs you in exactly once if you lose access to your authenticator app. " +
		"Store this sheet somewhere safe and offline. These codes will not be shown again."
	pdf.MultiCell(0, 6, intro, "", "L", false)
	pdf.Ln(4)

	pdf.SetFont("Courier", "B", 14)
	for i, code := range data.Codes {
		pdf.CellFormat(0, 9, fmt.Sprintf("%d.  %s", i+1, code), "", 1, "L", false, 0, "")
	}
	pdf.Ln(2)
	g.hr(pdf)

	pdf.SetFont(g.fontName, "", 10)
	pdf.MultiCell(0, 5,
		"If you run out of codes, disable and re-enable two-factor authentication to get a fresh set. "+
			"Anyone holding a code can bypass your authenticator, so treat this sheet like a password.",
		"", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *DocumentGenerator) sectionTitle(pdf *gofpdf.Fpdf, s string) {
	pdf.SetFont(g.fontName, "B", 12)
	pdf.CellFormat(0, 7, s, "", 1, "L", false, 0, "")
	pdf.SetFont(g.fontName, "", 11)
}

func (g *DocumentGenerator) kvLine(pdf *gofpdf.Fpdf, key, val string) {
	pdf.SetFont(g.fontName, "B", 11)
	pdf.CellFormat(45, 6, key+":", "", 0, "L", false, 0, "")
	pdf.SetFont(g.fontName, "", 11)
	pdf.CellFormat(0, 6, val, "", 1, "L", false, 0, "")
}

func (g *DocumentGenerator) hr(pdf *gofpdf.Fpdf) {
	y := pdf.GetY() + 1.5
	pdf.SetLineWidth(0.2)
	pdf.Line(20, y, 190, y)
	pdf.SetY(y + 2)
}
