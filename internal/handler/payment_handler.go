package handler

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edufin-api/internal/dto"
	"github.com/noah-isme/edufin-api/internal/models"
	"github.com/noah-isme/edufin-api/internal/service"
	"github.com/noah-isme/edufin-api/pkg/billing"
	appErrors "github.com/noah-isme/edufin-api/pkg/errors"
	"github.com/noah-isme/edufin-api/pkg/export"
	"github.com/noah-isme/edufin-api/pkg/response"
)

const maxWebhookBody = 1 << 20

type paymentService interface {
	ListPlans(ctx context.Context) ([]models.SubscriptionType, error)
	InitiateCourseCheckout(ctx context.Context, userID, slug string, meta service.RequestMeta) (*dto.CheckoutResponse, error)
	InitiateSubscriptionCheckout(ctx context.Context, userID, planID string, meta service.RequestMeta) (*dto.CheckoutResponse, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) (*dto.WebhookResult, error)
	SessionStatus(ctx context.Context, userID, sessionID string) (*models.Payment, error)
	ListMine(ctx context.Context, userID string, filter models.PaymentFilter) ([]models.Payment, *models.Pagination, error)
	Refund(ctx context.Context, adminID, paymentID string, meta service.RequestMeta) (*models.Payment, error)
	Export(ctx context.Context, adminID string, filter models.PaymentFilter, format export.Format, meta service.RequestMeta) (*dto.PaymentExport, error)
}

// PaymentHandler exposes checkout, the provider webhook and payment history.
type PaymentHandler struct {
	service paymentService
}

// NewPaymentHandler constructs the handler.
func NewPaymentHandler(service paymentService) *PaymentHandler {
	return &PaymentHandler{service: service}
}

// Plans godoc
// @Summary List subscription plans
// @Tags Payments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /subscription-types [get]
func (h *PaymentHandler) Plans(c *gin.Context) {
	plans, err := h.service.ListPlans(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, plans, nil)
}

// CheckoutCourse godoc
// @Summary Start checkout for a course
// @Description Free courses enroll immediately and return free=true
// @Tags Payments
// @Produce json
// @Param slug path string true "Course slug"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /checkout/courses/{slug} [post]
func (h *PaymentHandler) CheckoutCourse(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	result, err := h.service.InitiateCourseCheckout(c.Request.Context(), userID, trimmedParam(c, "slug"), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// CheckoutSubscription godoc
// @Summary Start checkout for a subscription plan
// @Tags Payments
// @Produce json
// @Param id path string true "Subscription type ID"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /checkout/subscriptions/{id} [post]
func (h *PaymentHandler) CheckoutSubscription(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	result, err := h.service.InitiateSubscriptionCheckout(c.Request.Context(), userID, trimmedParam(c, "id"), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Success godoc
// @Summary Payment status after the provider redirect
// @Tags Payments
// @Produce json
// @Param session_id query string true "Checkout session ID"
// @Success 200 {object} response.Envelope
// @Router /payments/success [get]
func (h *PaymentHandler) Success(c *gin.Context) {
	h.status(c, "success")
}

// Cancel godoc
// @Summary Payment status after the buyer cancelled
// @Tags Payments
// @Produce json
// @Param session_id query string true "Checkout session ID"
// @Success 200 {object} response.Envelope
// @Router /payments/cancel [get]
func (h *PaymentHandler) Cancel(c *gin.Context) {
	h.status(c, "cancel")
}

func (h *PaymentHandler) status(c *gin.Context, page string) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	payment, err := h.service.SessionStatus(c.Request.Context(), userID, c.Query("session_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil, map[string]interface{}{"page": page})
}

// Webhook godoc
// @Summary Payment provider webhook
// @Description Deliveries are verified against the signature header and processed at most once per event id
// @Tags Payments
// @Accept json
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /payments/webhook [post]
func (h *PaymentHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		response.Error(c, appErrors.ErrMalformedPayload.Wrap(err, "unreadable webhook body"))
		return
	}
	result, err := h.service.HandleWebhook(c.Request.Context(), body, c.GetHeader(billing.SignatureHeader))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Mine godoc
// @Summary List my payments
// @Tags Payments
// @Produce json
// @Param status query string false "pending, completed, failed or refunded"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /me/payments [get]
func (h *PaymentHandler) Mine(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	payments, pagination, err := h.service.ListMine(c.Request.Context(), userID, paymentFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payments, pagination)
}

// Refund godoc
// @Summary Refund a completed payment
// @Description Revokes the access the payment granted
// @Tags Admin
// @Produce json
// @Param id path string true "Payment ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/payments/{id}/refund [post]
func (h *PaymentHandler) Refund(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	payment, err := h.service.Refund(c.Request.Context(), adminID, trimmedParam(c, "id"), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}

// Export godoc
// @Summary Export the payment ledger
// @Tags Admin
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Param status query string false "Payment status"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /admin/payments/export [get]
func (h *PaymentHandler) Export(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	format := export.Format(strings.ToLower(c.DefaultQuery("format", string(export.FormatCSV))))
	filter := paymentFilter(c)
	filter.UserID = strings.TrimSpace(c.Query("user_id"))
	file, err := h.service.Export(c.Request.Context(), adminID, filter, format, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Content)
}

func paymentFilter(c *gin.Context) models.PaymentFilter {
	page, size := pageParams(c)
	return models.PaymentFilter{
		Status:   models.PaymentStatus(strings.ToLower(strings.TrimSpace(c.Query("status")))),
		Page:     page,
		PageSize: size,
	}
}
