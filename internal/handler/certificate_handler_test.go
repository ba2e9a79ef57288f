package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edufin-api/internal/dto"
	"github.com/noah-isme/edufin-api/internal/models"
	appErrors "github.com/noah-isme/edufin-api/pkg/errors"
)

type fakeCertificateSrv struct {
	owner string
}

func (f *fakeCertificateSrv) ListMine(context.Context, string) ([]models.CertificateDetail, error) {
	return nil, nil
}

func (f *fakeCertificateSrv) Verify(_ context.Context, code string) (*dto.CertificateVerification, error) {
	if code != "CERT-1" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
	}
	return &dto.CertificateVerification{Valid: true, Code: code}, nil
}

func (f *fakeCertificateSrv) PDF(_ context.Context, studentID, _ string) (*dto.CertificateFile, error) {
	if studentID != f.owner {
		return nil, appErrors.ErrForbidden
	}
	return &dto.CertificateFile{Filename: "CERT-1.pdf", Content: []byte("%PDF-1.3")}, nil
}

func (f *fakeCertificateSrv) Share(context.Context, string, string) (*dto.CertificateShareResponse, error) {
	return &dto.CertificateShareResponse{Token: "tok"}, nil
}

func (f *fakeCertificateSrv) Shared(_ context.Context, token string) (*dto.CertificateFile, error) {
	return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid share token")
}

func TestCertificateHandlerDownload(t *testing.T) {
	handler := NewCertificateHandler(&fakeCertificateSrv{owner: "student-1"})
	c, rec := authedContext(http.MethodGet, "/me/certificates/cert-1/pdf", "", "student-1")
	c.Params = gin.Params{{Key: "id", Value: "cert-1"}}

	handler.Download(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "CERT-1.pdf")
	assert.Equal(t, "%PDF-1.3", rec.Body.String())

	c, rec = authedContext(http.MethodGet, "/me/certificates/cert-1/pdf", "", "student-2")
	c.Params = gin.Params{{Key: "id", Value: "cert-1"}}
	handler.Download(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCertificateHandlerVerifyIsPublic(t *testing.T) {
	handler := NewCertificateHandler(&fakeCertificateSrv{})

	c, rec := authedContext(http.MethodGet, "/certificates/verify/CERT-1", "", "")
	c.Params = gin.Params{{Key: "code", Value: "CERT-1"}}
	handler.Verify(c)
	assert.Equal(t, http.StatusOK, rec.Code)

	c, rec = authedContext(http.MethodGet, "/certificates/verify/CERT-2", "", "")
	c.Params = gin.Params{{Key: "code", Value: "CERT-2"}}
	handler.Verify(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCertificateHandlerSharedRejectsBadToken(t *testing.T) {
	handler := NewCertificateHandler(&fakeCertificateSrv{})
	c, rec := authedContext(http.MethodGet, "/certificates/shared/bad", "", "")
	c.Params = gin.Params{{Key: "token", Value: "bad"}}

	handler.Shared(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
