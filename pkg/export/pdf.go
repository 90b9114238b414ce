package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// ReceiptDocument carries the data rendered onto a payment receipt.
type ReceiptDocument struct {
	ReceiptNumber string
	IssuedAt      time.Time
	PatientName   string
	TherapistName string
	ServiceName   string
	SessionDate   string
	Amount        float64
	Method        string
	Status        string
}

// ProposalLine is one priced session in a treatment proposal.
type ProposalLine struct {
	ServiceName     string
	TherapistName   string
	Sessions        int
	DurationMinutes int
	UnitPrice       float64
}

// ProposalDocument describes a priced treatment plan for a patient.
type ProposalDocument struct {
	PatientName string
	PreparedAt  time.Time
	Lines       []ProposalLine
	Notes       string
}

// PDFExporter renders clinic documents as PDFs.
type PDFExporter struct {
	clinicName string
	footer     string
}

// NewPDFExporter constructs a PDF exporter branded with the clinic name.
func NewPDFExporter(clinicName, footer string) *PDFExporter {
	return &PDFExporter{clinicName: clinicName, footer: footer}
}

// RenderReceipt produces a single-page payment receipt.
func (e *PDFExporter) RenderReceipt(doc ReceiptDocument) ([]byte, error) {
	if doc.ReceiptNumber == "" {
		return nil, fmt.Errorf("receipt requires a receipt number")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.AddPage()

	e.header(pdf, "PAYMENT RECEIPT")

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Receipt No: %s", doc.ReceiptNumber), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Issued: %s", doc.IssuedAt.Format("2 January 2006 15:04")), "", 1, "", false, 0, "")
	pdf.Ln(4)

	rows := [][2]string{
		{"Patient", doc.PatientName},
		{"Therapist", doc.TherapistName},
		{"Service", doc.ServiceName},
		{"Session date", doc.SessionDate},
		{"Payment method", doc.Method},
		{"Status", doc.Status},
	}
	for _, row := range rows {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(45, 7, row[0], "1", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(135, 7, row[1], "1", 1, "", false, 0, "")
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, fmt.Sprintf("Amount paid: %s", formatAmount(doc.Amount)), "", 1, "R", false, 0, "")

	e.pageFooter(pdf)

	return output(pdf)
}

// RenderProposal produces a priced treatment-plan proposal.
func (e *PDFExporter) RenderProposal(doc ProposalDocument) ([]byte, error) {
	if len(doc.Lines) == 0 {
		return nil, fmt.Errorf("proposal requires at least one line")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.AddPage()

	e.header(pdf, "TREATMENT PROPOSAL")

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Patient: %s", doc.PatientName), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Prepared: %s", doc.PreparedAt.Format("2 January 2006")), "", 1, "", false, 0, "")
	pdf.Ln(4)

	headers := []string{"Service", "Therapist", "Sessions", "Duration", "Unit price", "Subtotal"}
	widths := []float64{45, 40, 20, 22, 26, 27}
	pdf.SetFont("Arial", "B", 9)
	for i, header := range headers {
		pdf.CellFormat(widths[i], 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	var total float64
	for _, line := range doc.Lines {
		subtotal := float64(line.Sessions) * line.UnitPrice
		total += subtotal
		cells := []string{
			line.ServiceName,
			line.TherapistName,
			fmt.Sprintf("%d", line.Sessions),
			fmt.Sprintf("%d min", line.DurationMinutes),
			formatAmount(line.UnitPrice),
			formatAmount(subtotal),
		}
		for i, cell := range cells {
			pdf.CellFormat(widths[i], 7, cell, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(153, 8, "Total", "1", 0, "R", false, 0, "")
	pdf.CellFormat(27, 8, formatAmount(total), "1", 1, "R", false, 0, "")

	if doc.Notes != "" {
		pdf.Ln(4)
		pdf.SetFont("Arial", "I", 9)
		pdf.MultiCell(0, 5, doc.Notes, "", "", false)
	}

	e.pageFooter(pdf)

	return output(pdf)
}

func (e *PDFExporter) header(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, strings.ToUpper(e.clinicName), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 8, title, "", 1, "C", false, 0, "")
	pdf.Ln(4)
}

func (e *PDFExporter) pageFooter(pdf *gofpdf.Fpdf) {
	if e.footer == "" {
		return
	}
	pdf.Ln(8)
	pdf.SetFont("Arial", "I", 8)
	pdf.CellFormat(0, 6, e.footer, "", 1, "C", false, 0, "")
}

func formatAmount(v float64) string {
	return fmt.Sprintf("Rp %.2f", v)
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
