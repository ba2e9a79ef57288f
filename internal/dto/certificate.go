package dto

import "time"

// CertificateVerification is the public answer to a verification lookup.
type CertificateVerification struct {
	Valid       bool      `json:"valid"`
	Code        string    `json:"certificate_code"`
	StudentName string    `json:"student_name"`
	CourseTitle string    `json:"course_title"`
	Instructor  string    `json:"instructor_name"`
	IssuedAt    time.Time `json:"issued_at"`
}

// CertificateShareResponse carries a signed public download link.
type CertificateShareResponse struct {
	URL       string    `json:"url"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CertificateFile is a rendered certificate ready to stream.
type CertificateFile struct {
	Filename string
	Content  []byte
}
