package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/edufin-api/internal/dto"
	"github.com/noah-isme/edufin-api/internal/models"
	appErrors "github.com/noah-isme/edufin-api/pkg/errors"
	"github.com/noah-isme/edufin-api/pkg/export"
	"github.com/noah-isme/edufin-api/pkg/jobs"
)

// CertificateRenderJob is the queue job type for PDF pre-rendering.
const CertificateRenderJob = "certificate_pdf"

type certificateRepository interface {
	GetOrCreate(ctx context.Context, studentID, courseID string) (*models.Certificate, bool, error)
	FindDetailByID(ctx context.Context, id string) (*models.CertificateDetail, error)
	FindDetailByCode(ctx context.Context, code string) (*models.CertificateDetail, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.CertificateDetail, error)
	SetFilePath(ctx context.Context, id, path string) error
}

type fileStore interface {
	Save(relPath string, data []byte) (string, error)
	Open(relPath string) (*os.File, error)
	Exists(relPath string) bool
}

type shareSigner interface {
	Generate(subjectID, relPath string) (string, time.Time, error)
	Parse(token string) (subjectID, relPath string, expiresAt time.Time, err error)
}

type certificatePDFRenderer interface {
	Render(data export.CertificateData) ([]byte, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// CertificateURLs builds the public links printed on and handed out for
// certificates.
type CertificateURLs struct {
	BaseURL string
}

func (u CertificateURLs) verify(code string) string {
	return fmt.Sprintf("%s/certificates/verify/%s", u.BaseURL, code)
}

func (u CertificateURLs) shared(token string) string {
	return fmt.Sprintf("%s/certificates/shared/%s", u.BaseURL, token)
}

// CertificateDocuments renders certificate PDFs into storage once and
// serves them afterwards.
type CertificateDocuments struct {
	repo     certificateRepository
	store    fileStore
	renderer certificatePDFRenderer
	urls     CertificateURLs
}

// NewCertificateDocuments constructs CertificateDocuments.
func NewCertificateDocuments(repo certificateRepository, store fileStore, renderer certificatePDFRenderer, urls CertificateURLs) *CertificateDocuments {
	return &CertificateDocuments{repo: repo, store: store, renderer: renderer, urls: urls}
}

// Ensure returns the storage path of the certificate PDF, rendering it when
// it is missing.
func (d *CertificateDocuments) Ensure(ctx context.Context, cert *models.CertificateDetail) (string, error) {
	if cert.FilePath != nil && d.store.Exists(*cert.FilePath) {
		return *cert.FilePath, nil
	}

	content, err := d.renderer.Render(export.CertificateData{
		Code:        cert.Code,
		StudentName: cert.StudentName,
		CourseTitle: cert.CourseTitle,
		Instructor:  cert.InstructorName,
		IssuedAt:    cert.IssuedAt,
		VerifyURL:   d.urls.verify(cert.Code),
	})
	if err != nil {
		return "", fmt.Errorf("render certificate %s: %w", cert.ID, err)
	}
	path := fmt.Sprintf("certificates/%s.pdf", cert.Code)
	if _, err := d.store.Save(path, content); err != nil {
		return "", fmt.Errorf("store certificate %s: %w", cert.ID, err)
	}
	if err := d.repo.SetFilePath(ctx, cert.ID, path); err != nil {
		return "", fmt.Errorf("record certificate path %s: %w", cert.ID, err)
	}
	cert.FilePath = &path
	return path, nil
}

// Read loads a stored PDF.
func (d *CertificateDocuments) Read(path string) ([]byte, error) {
	file, err := d.store.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

// CertificateWorker pre-renders PDFs for freshly issued certificates.
type CertificateWorker struct {
	repo      certificateRepository
	documents *CertificateDocuments
	logger    *zap.Logger
}

// NewCertificateWorker constructs a worker.
func NewCertificateWorker(repo certificateRepository, documents *CertificateDocuments, logger *zap.Logger) *CertificateWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CertificateWorker{repo: repo, documents: documents, logger: logger}
}

// Handle processes a queue job whose ID is the certificate id.
func (w *CertificateWorker) Handle(ctx context.Context, job jobs.Job) error {
	cert, err := w.repo.FindDetailByID(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("load certificate %s: %w", job.ID, err)
	}
	if _, err := w.documents.Ensure(ctx, cert); err != nil {
		return err
	}
	w.logger.Debug("certificate pdf rendered", zap.String("certificate_id", cert.ID), zap.Int("attempt", job.Attempt+1))
	return nil
}

// CertificateService issues certificates and serves them to owners and
// third parties.
type CertificateService struct {
	repo      certificateRepository
	progress  courseCounter
	documents *CertificateDocuments
	signer    shareSigner
	queue     jobEnqueuer
	urls      CertificateURLs
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewCertificateService constructs CertificateService. queue may be nil, in
// which case PDFs are only rendered on demand.
func NewCertificateService(repo certificateRepository, progress courseCounter, documents *CertificateDocuments, signer shareSigner, queue jobEnqueuer, urls CertificateURLs, metrics *MetricsService, logger *zap.Logger) *CertificateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CertificateService{
		repo:      repo,
		progress:  progress,
		documents: documents,
		signer:    signer,
		queue:     queue,
		urls:      urls,
		metrics:   metrics,
		logger:    logger,
	}
}

// CheckAndIssue issues the course certificate once every lesson is
// completed. It reports whether a certificate was created by this call.
func (s *CertificateService) CheckAndIssue(ctx context.Context, studentID, courseID string) (bool, error) {
	counts, err := s.progress.CourseCounts(ctx, studentID, courseID)
	if err != nil {
		return false, appErrors.ErrInternal.Wrap(err, "failed to compute progress")
	}
	if !counts.Complete() {
		return false, nil
	}

	cert, created, err := s.repo.GetOrCreate(ctx, studentID, courseID)
	if err != nil {
		return false, appErrors.ErrInternal.Wrap(err, "failed to issue certificate")
	}
	if !created {
		return false, nil
	}

	s.metrics.RecordCertificateIssued()
	s.logger.Info("certificate issued",
		zap.String("student_id", studentID),
		zap.String("course_id", courseID),
		zap.String("code", cert.Code))
	if s.queue != nil {
		err := s.queue.Enqueue(jobs.Job{ID: cert.ID, Type: CertificateRenderJob})
		if err != nil && !errors.Is(err, jobs.ErrDuplicate) {
			s.logger.Warn("failed to enqueue certificate render", zap.String("certificate_id", cert.ID), zap.Error(err))
		}
	}
	return true, nil
}

// ListMine returns the student's certificates.
func (s *CertificateService) ListMine(ctx context.Context, studentID string) ([]models.CertificateDetail, error) {
	certs, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to list certificates")
	}
	return certs, nil
}

// Verify looks up a certificate by its public code.
func (s *CertificateService) Verify(ctx context.Context, code string) (*dto.CertificateVerification, error) {
	cert, err := s.repo.FindDetailByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, appErrors.ErrInternal.Wrap(err, "failed to verify certificate")
	}
	return &dto.CertificateVerification{
		Valid:       cert.IsActive,
		Code:        cert.Code,
		StudentName: cert.StudentName,
		CourseTitle: cert.CourseTitle,
		Instructor:  cert.InstructorName,
		IssuedAt:    cert.IssuedAt,
	}, nil
}

// PDF returns the owner's certificate document.
func (s *CertificateService) PDF(ctx context.Context, studentID, certificateID string) (*dto.CertificateFile, error) {
	cert, err := s.owned(ctx, studentID, certificateID)
	if err != nil {
		return nil, err
	}
	return s.file(ctx, cert)
}

// Share creates a signed, expiring public download link for the owner's
// certificate.
func (s *CertificateService) Share(ctx context.Context, studentID, certificateID string) (*dto.CertificateShareResponse, error) {
	cert, err := s.owned(ctx, studentID, certificateID)
	if err != nil {
		return nil, err
	}
	path, err := s.documents.Ensure(ctx, cert)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to render certificate")
	}
	token, expiresAt, err := s.signer.Generate(cert.ID, path)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to sign share link")
	}
	return &dto.CertificateShareResponse{URL: s.urls.shared(token), Token: token, ExpiresAt: expiresAt}, nil
}

// Shared resolves a share token into the certificate document.
func (s *CertificateService) Shared(ctx context.Context, token string) (*dto.CertificateFile, error) {
	certificateID, _, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.ErrForbidden.Wrap(err, "share link is invalid or expired")
	}
	cert, err := s.repo.FindDetailByID(ctx, certificateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, appErrors.ErrInternal.Wrap(err, "failed to load certificate")
	}
	if !cert.IsActive {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
	}
	return s.file(ctx, cert)
}

func (s *CertificateService) owned(ctx context.Context, studentID, certificateID string) (*models.CertificateDetail, error) {
	cert, err := s.repo.FindDetailByID(ctx, certificateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, appErrors.ErrInternal.Wrap(err, "failed to load certificate")
	}
	if cert.StudentID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "certificate belongs to another student")
	}
	return cert, nil
}

func (s *CertificateService) file(ctx context.Context, cert *models.CertificateDetail) (*dto.CertificateFile, error) {
	path, err := s.documents.Ensure(ctx, cert)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to render certificate")
	}
	content, err := s.documents.Read(path)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to read certificate")
	}
	return &dto.CertificateFile{Filename: cert.Code + ".pdf", Content: content}, nil
}
