package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Certificate is proof of completion, issued once per (student, course).
type Certificate struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	Code      string    `db:"certificate_code" json:"certificate_code"`
	IssuedAt  time.Time `db:"issued_at" json:"issued_at"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	FilePath  *string   `db:"file_path" json:"-"`
}

// CertificateDetail joins a certificate with the names printed on it.
type CertificateDetail struct {
	Certificate
	CourseTitle    string `db:"course_title" json:"course_title"`
	CourseSlug     string `db:"course_slug" json:"course_slug"`
	StudentName    string `db:"student_name" json:"student_name"`
	InstructorName string `db:"instructor_name" json:"instructor_name"`
}

// NewCertificateCode returns a code of the form CERT-XXXXXXXX.
func NewCertificateCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "CERT-" + strings.ToUpper(raw[:8])
}
