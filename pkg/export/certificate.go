package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// CertificateData is the content printed on a completion certificate.
type CertificateData struct {
	Code        string
	StudentName string
	CourseTitle string
	Instructor  string
	IssuedAt    time.Time
	VerifyURL   string
}

// CertificateRenderer draws landscape A4 certificates.
type CertificateRenderer struct {
	issuer string
}

// NewCertificateRenderer builds a renderer signing as issuer.
func NewCertificateRenderer(issuer string) *CertificateRenderer {
	if issuer == "" {
		issuer = "EduFin Academy"
	}
	return &CertificateRenderer{issuer: issuer}
}

// Render returns the PDF bytes for data.
func (r *CertificateRenderer) Render(data CertificateData) ([]byte, error) {
	if data.Code == "" || data.CourseTitle == "" {
		return nil, fmt.Errorf("certificate code and course title are required")
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	pdf.SetLineWidth(1.2)
	pdf.SetDrawColor(40, 70, 120)
	pdf.Rect(10, 10, 277, 190, "D")
	pdf.SetLineWidth(0.4)
	pdf.Rect(14, 14, 269, 182, "D")

	pdf.SetY(35)
	pdf.SetFont("Helvetica", "B", 30)
	pdf.SetTextColor(40, 70, 120)
	pdf.CellFormat(0, 14, "Certificate of Completion", "", 1, "C", false, 0, "")

	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 14)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(0, 8, "This certifies that", "", 1, "C", false, 0, "")

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 24)
	pdf.SetTextColor(20, 20, 20)
	pdf.CellFormat(0, 12, data.StudentName, "", 1, "C", false, 0, "")

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "", 14)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(0, 8, "has successfully completed the course", "", 1, "C", false, 0, "")

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetTextColor(40, 70, 120)
	pdf.MultiCell(0, 10, data.CourseTitle, "", "C", false)

	pdf.SetY(150)
	pdf.SetFont("Helvetica", "", 11)
	pdf.SetTextColor(80, 80, 80)
	issued := data.IssuedAt
	if issued.IsZero() {
		issued = time.Now().UTC()
	}
	pdf.CellFormat(128, 6, "Issued "+issued.Format("January 2, 2006"), "", 0, "C", false, 0, "")
	instructor := data.Instructor
	if instructor == "" {
		instructor = r.issuer
	}
	pdf.CellFormat(128, 6, instructor, "", 1, "C", false, 0, "")
	pdf.CellFormat(128, 6, r.issuer, "", 0, "C", false, 0, "")
	pdf.CellFormat(128, 6, "Instructor", "", 1, "C", false, 0, "")

	pdf.SetY(180)
	pdf.SetFont("Courier", "", 9)
	footer := "Certificate ID " + data.Code
	if data.VerifyURL != "" {
		footer += "  |  Verify at " + data.VerifyURL
	}
	pdf.CellFormat(0, 5, footer, "", 1, "C", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	return buf.Bytes(), nil
}
