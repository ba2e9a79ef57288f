package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edufin-api/internal/models"
)

const (
	certificatePairConstraint  = "certificates_student_course_key"
	certificateCodeConstraint  = "certificates_code_key"
	maxCertificateCodeAttempts = 5
)

const certificateColumns = `id, student_id, course_id, certificate_code, issued_at, is_active, file_path`

const certificateDetailSelect = `SELECT ce.id, ce.student_id, ce.course_id, ce.certificate_code, ce.issued_at, ce.is_active, ce.file_path,
    co.title AS course_title, co.slug AS course_slug, st.full_name AS student_name, ins.full_name AS instructor_name
FROM certificates ce
JOIN courses co ON co.id = ce.course_id
JOIN users st ON st.id = ce.student_id
JOIN users ins ON ins.id = co.instructor_id`

// ErrCertificateCodeExhausted is returned when every generated code collided.
var ErrCertificateCodeExhausted = errors.New("could not allocate a unique certificate code")

// CertificateRepository manages issued certificates.
type CertificateRepository struct {
	db *sqlx.DB
}

// NewCertificateRepository constructs the repository.
func NewCertificateRepository(db *sqlx.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

// FindByStudentCourse returns the certificate for the pair.
func (r *CertificateRepository) FindByStudentCourse(ctx context.Context, studentID, courseID string) (*models.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE student_id = $1 AND course_id = $2 LIMIT 1`
	var cert models.Certificate
	if err := r.db.GetContext(ctx, &cert, query, studentID, courseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find certificate: %w", err)
	}
	return &cert, nil
}

// GetOrCreate issues a certificate for the pair unless one exists. Code
// collisions are retried with a fresh code; a concurrent issue for the same
// pair resolves to the stored row with created=false.
func (r *CertificateRepository) GetOrCreate(ctx context.Context, studentID, courseID string) (*models.Certificate, bool, error) {
	existing, err := r.FindByStudentCourse(ctx, studentID, courseID)
	if err == nil {
		return existing, false, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, err
	}

	const query = `INSERT INTO certificates (id, student_id, course_id, certificate_code, issued_at, is_active) VALUES (:id, :student_id, :course_id, :certificate_code, :issued_at, :is_active)`
	for attempt := 0; attempt < maxCertificateCodeAttempts; attempt++ {
		cert := &models.Certificate{
			ID:        uuid.NewString(),
			StudentID: studentID,
			CourseID:  courseID,
			Code:      models.NewCertificateCode(),
			IssuedAt:  time.Now().UTC(),
			IsActive:  true,
		}
		_, err := r.db.NamedExecContext(ctx, query, cert)
		switch {
		case err == nil:
			return cert, true, nil
		case isUniqueViolation(err, certificateCodeConstraint):
			continue
		case isUniqueViolation(err, certificatePairConstraint):
			existing, err := r.FindByStudentCourse(ctx, studentID, courseID)
			if err != nil {
				return nil, false, err
			}
			return existing, false, nil
		default:
			return nil, false, fmt.Errorf("create certificate: %w", err)
		}
	}
	return nil, false, ErrCertificateCodeExhausted
}

// FindDetailByID returns a certificate with printable names.
func (r *CertificateRepository) FindDetailByID(ctx context.Context, id string) (*models.CertificateDetail, error) {
	return r.findDetail(ctx, "ce.id", id)
}

// FindDetailByCode returns a certificate by its public code.
func (r *CertificateRepository) FindDetailByCode(ctx context.Context, code string) (*models.CertificateDetail, error) {
	return r.findDetail(ctx, "ce.certificate_code", code)
}

func (r *CertificateRepository) findDetail(ctx context.Context, column, value string) (*models.CertificateDetail, error) {
	query := certificateDetailSelect + ` WHERE ` + column + ` = $1 LIMIT 1`
	var detail models.CertificateDetail
	if err := r.db.GetContext(ctx, &detail, query, value); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find certificate detail: %w", err)
	}
	return &detail, nil
}

// ListByStudent returns the student's active certificates, newest first.
func (r *CertificateRepository) ListByStudent(ctx context.Context, studentID string) ([]models.CertificateDetail, error) {
	query := certificateDetailSelect + ` WHERE ce.student_id = $1 AND ce.is_active ORDER BY ce.issued_at DESC`
	var certs []models.CertificateDetail
	if err := r.db.SelectContext(ctx, &certs, query, studentID); err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	return certs, nil
}

// CountActiveByStudent returns how many active certificates the student holds.
func (r *CertificateRepository) CountActiveByStudent(ctx context.Context, studentID string) (int, error) {
	const query = `SELECT COUNT(*) FROM certificates WHERE student_id = $1 AND is_active`
	var count int
	if err := r.db.GetContext(ctx, &count, query, studentID); err != nil {
		return 0, fmt.Errorf("count certificates: %w", err)
	}
	return count, nil
}

// SetFilePath records where the rendered PDF is stored.
func (r *CertificateRepository) SetFilePath(ctx context.Context, id, path string) error {
	const query = `UPDATE certificates SET file_path = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, path); err != nil {
		return fmt.Errorf("set certificate file path: %w", err)
	}
	return nil
}
