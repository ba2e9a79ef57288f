package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edufin-api/internal/dto"
	"github.com/noah-isme/edufin-api/internal/models"
	"github.com/noah-isme/edufin-api/pkg/response"
)

type certificateService interface {
	ListMine(ctx context.Context, studentID string) ([]models.CertificateDetail, error)
	Verify(ctx context.Context, code string) (*dto.CertificateVerification, error)
	PDF(ctx context.Context, studentID, certificateID string) (*dto.CertificateFile, error)
	Share(ctx context.Context, studentID, certificateID string) (*dto.CertificateShareResponse, error)
	Shared(ctx context.Context, token string) (*dto.CertificateFile, error)
}

// CertificateHandler exposes issued certificates.
type CertificateHandler struct {
	service certificateService
}

// NewCertificateHandler constructs the handler.
func NewCertificateHandler(service certificateService) *CertificateHandler {
	return &CertificateHandler{service: service}
}

// Mine godoc
// @Summary List my certificates
// @Tags Certificates
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/certificates [get]
func (h *CertificateHandler) Mine(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	certificates, err := h.service.ListMine(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, certificates, nil)
}

// Download godoc
// @Summary Download my certificate as PDF
// @Tags Certificates
// @Produce application/pdf
// @Param id path string true "Certificate ID"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /me/certificates/{id}/pdf [get]
func (h *CertificateHandler) Download(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	file, err := h.service.PDF(c.Request.Context(), userID, trimmedParam(c, "id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	sendPDF(c, file)
}

// Share godoc
// @Summary Create a public share link for my certificate
// @Tags Certificates
// @Produce json
// @Param id path string true "Certificate ID"
// @Success 201 {object} response.Envelope
// @Router /me/certificates/{id}/share [post]
func (h *CertificateHandler) Share(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	share, err := h.service.Share(c.Request.Context(), userID, trimmedParam(c, "id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, share)
}

// Verify godoc
// @Summary Verify a certificate code
// @Tags Certificates
// @Produce json
// @Param code path string true "Certificate code"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /certificates/verify/{code} [get]
func (h *CertificateHandler) Verify(c *gin.Context) {
	result, err := h.service.Verify(c.Request.Context(), trimmedParam(c, "code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Shared godoc
// @Summary Download a shared certificate
// @Tags Certificates
// @Produce application/pdf
// @Param token path string true "Share token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /certificates/shared/{token} [get]
func (h *CertificateHandler) Shared(c *gin.Context) {
	file, err := h.service.Shared(c.Request.Context(), trimmedParam(c, "token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	sendPDF(c, file)
}

func sendPDF(c *gin.Context, file *dto.CertificateFile) {
	response.Attachment(c, file.Filename, "application/pdf", file.Content)
}
