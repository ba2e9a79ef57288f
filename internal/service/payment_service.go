package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/edufin-api/internal/dto"
	"github.com/noah-isme/edufin-api/internal/models"
	"github.com/noah-isme/edufin-api/internal/repository"
	"github.com/noah-isme/edufin-api/pkg/billing"
	appErrors "github.com/noah-isme/edufin-api/pkg/errors"
	"github.com/noah-isme/edufin-api/pkg/export"
	"github.com/noah-isme/edufin-api/pkg/logger"
)

type paymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	CreateWithSubscription(ctx context.Context, sub *models.Subscription, payment *models.Payment) error
	FindBySessionID(ctx context.Context, sessionID string) (*models.Payment, error)
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error)
	ListLedger(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentLedgerRow, error)
	RecordEvent(ctx context.Context, eventID, eventType, sessionID, outcome string) error
	ApplyCheckoutCompleted(ctx context.Context, in repository.CompletionInput) (string, error)
	MarkFailed(ctx context.Context, eventID, eventType string, payment *models.Payment, at time.Time) (string, error)
	Refund(ctx context.Context, payment *models.Payment, at time.Time) (bool, error)
}

type subscriptionRepository interface {
	ListActiveTypes(ctx context.Context) ([]models.SubscriptionType, error)
	FindTypeByID(ctx context.Context, id string) (*models.SubscriptionType, error)
	FindActiveForUser(ctx context.Context, userID string, now time.Time) (*models.Subscription, error)
	Create(ctx context.Context, sub *models.Subscription) error
}

type checkoutCourseResolver interface {
	ResolveCourse(ctx context.Context, slug string) (*models.CourseSummary, error)
}

type enrollmentGranter interface {
	Grant(ctx context.Context, studentID, courseID string) (*models.EnrollResult, error)
}

type payerReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// webhookVerifier authenticates a delivery and decodes it into an event.
// Each checkout provider brings its own.
type webhookVerifier interface {
	Verify(body []byte, header string) error
	Parse(body []byte) (*billing.Event, error)
}

// PaymentConfig holds checkout settings.
type PaymentConfig struct {
	Currency   string
	SuccessURL string
	CancelURL  string
}

// PaymentDeps groups the collaborators of PaymentService.
type PaymentDeps struct {
	Payments      paymentRepository
	Subscriptions subscriptionRepository
	Courses       checkoutCourseResolver
	Enrollments   enrollmentChecker
	Granter       enrollmentGranter
	Users         payerReader
	Audit         auditRecorder
	Provider      billing.Provider
	Verifier      webhookVerifier
	Metrics       *MetricsService
}

// RequestMeta identifies the caller of an audited operation.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// PaymentService opens checkouts and reconciles provider webhooks into
// enrollments and subscriptions.
type PaymentService struct {
	payments      paymentRepository
	subscriptions subscriptionRepository
	courses       checkoutCourseResolver
	enrollments   enrollmentChecker
	granter       enrollmentGranter
	users         payerReader
	audit         auditRecorder
	provider      billing.Provider
	verifier      webhookVerifier
	metrics       *MetricsService
	validator     *validator.Validate
	config        PaymentConfig
	logger        *zap.Logger
	now           func() time.Time
}

// NewPaymentService constructs PaymentService.
func NewPaymentService(deps PaymentDeps, config PaymentConfig, validate *validator.Validate, logr *zap.Logger) *PaymentService {
	if validate == nil {
		validate = NewValidator()
	}
	if logr == nil {
		logr = zap.NewNop()
	}
	if config.Currency == "" {
		config.Currency = "USD"
	}
	return &PaymentService{
		payments:      deps.Payments,
		subscriptions: deps.Subscriptions,
		courses:       deps.Courses,
		enrollments:   deps.Enrollments,
		granter:       deps.Granter,
		users:         deps.Users,
		audit:         deps.Audit,
		provider:      deps.Provider,
		verifier:      deps.Verifier,
		metrics:       deps.Metrics,
		validator:     validate,
		config:        config,
		logger:        logr,
		now:           time.Now,
	}
}

// ListPlans returns the purchasable subscription plans.
func (s *PaymentService) ListPlans(ctx context.Context) ([]models.SubscriptionType, error) {
	plans, err := s.subscriptions.ListActiveTypes(ctx)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to list subscription plans")
	}
	return plans, nil
}

// InitiateCourseCheckout starts payment for a priced course. Free courses
// are enrolled directly.
func (s *PaymentService) InitiateCourseCheckout(ctx context.Context, userID, slug string, meta RequestMeta) (*dto.CheckoutResponse, error) {
	course, err := s.courses.ResolveCourse(ctx, slug)
	if err != nil {
		return nil, err
	}
	enrolled, err := s.enrollments.IsActive(ctx, userID, course.ID)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to check enrollment")
	}
	if enrolled {
		return nil, appErrors.Clone(appErrors.ErrConflict, "already enrolled in this course")
	}

	if course.IsFree() {
		result, err := s.granter.Grant(ctx, userID, course.ID)
		if err != nil {
			return nil, err
		}
		return &dto.CheckoutResponse{Free: true, Enrollment: result}, nil
	}

	reference := models.CheckoutReference{
		Version:  models.CheckoutReferenceVersion,
		Kind:     models.PaymentTypeCourse,
		CourseID: course.ID,
		UserID:   userID,
	}
	item := billing.Item{ID: course.ID, Name: course.Title, Category: "course", Price: course.Price, Quantity: 1}
	session, err := s.openSession(ctx, userID, item)
	if err != nil {
		return nil, err
	}

	payment := s.newPayment(userID, models.PaymentTypeCourse, item, session, reference)
	payment.CourseID = &course.ID
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to record payment")
	}
	s.recordAudit(ctx, userID, models.AuditActionCheckout, payment, meta)

	return &dto.CheckoutResponse{PaymentID: payment.ID, SessionID: session.SessionID, Token: session.Token, RedirectURL: session.RedirectURL}, nil
}

// InitiateSubscriptionCheckout starts payment for a plan. A pending
// subscription is created alongside the payment so the webhook can activate
// it. Free plans activate immediately.
func (s *PaymentService) InitiateSubscriptionCheckout(ctx context.Context, userID, planID string, meta RequestMeta) (*dto.CheckoutResponse, error) {
	plan, err := s.subscriptions.FindTypeByID(ctx, planID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subscription plan not found")
		}
		return nil, appErrors.ErrInternal.Wrap(err, "failed to load subscription plan")
	}
	if !plan.IsActive {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "subscription plan not found")
	}

	now := s.now().UTC()
	if _, err := s.subscriptions.FindActiveForUser(ctx, userID, now); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "an active subscription already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to check subscription")
	}

	if plan.IsFree() {
		start, end := plan.Period(now)
		sub := &models.Subscription{UserID: userID, SubscriptionTypeID: plan.ID, Status: models.SubscriptionActive, StartDate: &start, EndDate: end}
		if err := s.subscriptions.Create(ctx, sub); err != nil {
			return nil, appErrors.ErrInternal.Wrap(err, "failed to activate subscription")
		}
		return &dto.CheckoutResponse{Free: true, Subscription: sub}, nil
	}

	reference := models.CheckoutReference{
		Version:            models.CheckoutReferenceVersion,
		Kind:               models.PaymentTypeSubscription,
		SubscriptionTypeID: plan.ID,
		UserID:             userID,
	}
	item := billing.Item{ID: plan.ID, Name: plan.Name, Category: "subscription", Price: plan.Price, Quantity: 1}
	session, err := s.openSession(ctx, userID, item)
	if err != nil {
		return nil, err
	}

	sub := &models.Subscription{UserID: userID, SubscriptionTypeID: plan.ID, Status: models.SubscriptionPending}
	payment := s.newPayment(userID, models.PaymentTypeSubscription, item, session, reference)
	if err := s.payments.CreateWithSubscription(ctx, sub, payment); err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to record payment")
	}
	s.recordAudit(ctx, userID, models.AuditActionCheckout, payment, meta)

	return &dto.CheckoutResponse{PaymentID: payment.ID, SessionID: session.SessionID, Token: session.Token, RedirectURL: session.RedirectURL, Subscription: sub}, nil
}

// HandleWebhook authenticates and applies a provider event. Only signature
// and payload failures are returned as errors; every authenticated delivery
// is acknowledged so the provider stops retrying.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) (*dto.WebhookResult, error) {
	if err := s.verifier.Verify(body, signature); err != nil {
		s.metrics.RecordWebhookEvent(models.OutcomeRejected)
		if errors.Is(err, billing.ErrMalformedEvent) {
			return nil, appErrors.ErrMalformedPayload.Wrap(err, "")
		}
		return nil, appErrors.ErrInvalidSignature.Wrap(err, "")
	}
	event, err := s.verifier.Parse(body)
	if err != nil {
		s.metrics.RecordWebhookEvent(models.OutcomeRejected)
		return nil, appErrors.ErrMalformedPayload.Wrap(err, "")
	}

	var outcome string
	switch event.Type {
	case billing.EventCheckoutCompleted, billing.EventCheckoutExpired, billing.EventPaymentFailed:
		outcome, err = s.reconcile(ctx, event)
	default:
		outcome = models.OutcomeIgnored
		err = s.payments.RecordEvent(ctx, event.ID, event.Type, event.Data.SessionID, outcome)
	}
	if err != nil {
		return nil, err
	}

	s.metrics.RecordWebhookEvent(outcome)
	logger.FromContext(ctx, s.logger).Info("billing webhook processed",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.String("session_id", event.Data.SessionID),
		zap.String("outcome", outcome))
	return &dto.WebhookResult{EventID: event.ID, Received: true, Outcome: outcome}, nil
}

func (s *PaymentService) reconcile(ctx context.Context, event *billing.Event) (string, error) {
	if strings.TrimSpace(event.Data.SessionID) == "" {
		s.metrics.RecordWebhookEvent(models.OutcomeRejected)
		return "", appErrors.WithFields(appErrors.Clone(appErrors.ErrMalformedPayload, "checkout event without session id"),
			map[string]string{"data.session_id": "is required"})
	}
	reference, err := s.decodeReference(event.Data.Reference)
	if err != nil {
		s.metrics.RecordWebhookEvent(models.OutcomeRejected)
		return "", err
	}

	payment, err := s.payments.FindBySessionID(ctx, event.Data.SessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("payment not found for checkout session",
				zap.String("event_id", event.ID),
				zap.String("session_id", event.Data.SessionID))
			return models.OutcomeNotFound, s.recordEvent(ctx, event, models.OutcomeNotFound)
		}
		return "", appErrors.ErrInternal.Wrap(err, "failed to load payment")
	}

	if reference != nil && !referenceMatches(payment.Reference, *reference) {
		s.logger.Warn("checkout reference does not match payment",
			zap.String("event_id", event.ID),
			zap.String("payment_id", payment.ID))
		return models.OutcomeMismatch, s.recordEvent(ctx, event, models.OutcomeMismatch)
	}

	var outcome string
	at := s.now().UTC()
	if event.Type == billing.EventCheckoutCompleted {
		outcome, err = s.payments.ApplyCheckoutCompleted(ctx, repository.CompletionInput{
			EventID:       event.ID,
			EventType:     event.Type,
			Payment:       payment,
			TransactionID: event.Data.TransactionID,
			At:            at,
		})
	} else {
		outcome, err = s.payments.MarkFailed(ctx, event.ID, event.Type, payment, at)
	}
	if err != nil {
		return "", appErrors.ErrInternal.Wrap(err, "failed to reconcile payment")
	}
	return outcome, nil
}

// decodeReference validates the reference echoed by the provider. Providers
// that do not echo it send nothing, which skips the cross check.
func (s *PaymentService) decodeReference(raw json.RawMessage) (*models.CheckoutReference, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var reference models.CheckoutReference
	if err := json.Unmarshal(trimmed, &reference); err != nil {
		return nil, appErrors.ErrMalformedPayload.Wrap(err, "malformed checkout reference")
	}
	if err := s.validator.Struct(reference); err != nil {
		fields := appErrors.FromError(validationError(err, "")).Fields
		return nil, appErrors.WithFields(appErrors.Clone(appErrors.ErrMalformedPayload, "invalid checkout reference"), fields)
	}
	return &reference, nil
}

func referenceMatches(stored, received models.CheckoutReference) bool {
	return stored.Kind == received.Kind &&
		stored.UserID == received.UserID &&
		stored.CourseID == received.CourseID &&
		stored.SubscriptionTypeID == received.SubscriptionTypeID
}

func (s *PaymentService) recordEvent(ctx context.Context, event *billing.Event, outcome string) error {
	if err := s.payments.RecordEvent(ctx, event.ID, event.Type, event.Data.SessionID, outcome); err != nil {
		return appErrors.ErrInternal.Wrap(err, "failed to record webhook event")
	}
	return nil
}

// SessionStatus returns the caller's payment for a checkout session.
func (s *PaymentService) SessionStatus(ctx context.Context, userID, sessionID string) (*models.Payment, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, appErrors.WithFields(appErrors.Clone(appErrors.ErrValidation, "session id is required"), map[string]string{"session_id": "is required"})
	}
	payment, err := s.payments.FindBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPaymentNotFound, "payment not found")
		}
		return nil, appErrors.ErrInternal.Wrap(err, "failed to load payment")
	}
	if payment.UserID != userID {
		return nil, appErrors.Clone(appErrors.ErrPaymentNotFound, "payment not found")
	}
	return payment, nil
}

// ListMine returns the caller's payments.
func (s *PaymentService) ListMine(ctx context.Context, userID string, filter models.PaymentFilter) ([]models.Payment, *models.Pagination, error) {
	filter.UserID = userID
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)
	payments, total, err := s.payments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.ErrInternal.Wrap(err, "failed to list payments")
	}
	return payments, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Refund moves a completed payment to refunded and revokes the access it
// granted.
func (s *PaymentService) Refund(ctx context.Context, adminID, paymentID string, meta RequestMeta) (*models.Payment, error) {
	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPaymentNotFound, "payment not found")
		}
		return nil, appErrors.ErrInternal.Wrap(err, "failed to load payment")
	}
	if !payment.Status.CanTransition(models.PaymentRefunded) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot refund a %s payment", payment.Status))
	}

	refunded, err := s.payments.Refund(ctx, payment, s.now().UTC())
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to refund payment")
	}
	if !refunded {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "payment is no longer refundable")
	}
	payment.Status = models.PaymentRefunded
	s.recordAudit(ctx, adminID, models.AuditActionRefund, payment, meta)
	return payment, nil
}

// Export renders the payment ledger as CSV or PDF.
func (s *PaymentService) Export(ctx context.Context, adminID string, filter models.PaymentFilter, format export.Format, meta RequestMeta) (*dto.PaymentExport, error) {
	if format != export.FormatCSV && format != export.FormatPDF {
		return nil, appErrors.WithFields(appErrors.Clone(appErrors.ErrValidation, "unsupported export format"), map[string]string{"format": "must be one of [csv pdf]"})
	}
	rows, err := s.payments.ListLedger(ctx, filter)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to load payments")
	}

	dataset := export.Dataset{
		Title:   "Payment ledger",
		Headers: []string{"Date", "Payment", "User", "Type", "Item", "Amount", "Currency", "Status", "Session"},
	}
	for _, row := range rows {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Date":     row.CreatedAt.UTC().Format(time.RFC3339),
			"Payment":  row.ID,
			"User":     row.UserEmail,
			"Type":     string(row.Type),
			"Item":     row.TargetTitle,
			"Amount":   row.Amount.StringFixed(2),
			"Currency": row.Currency,
			"Status":   string(row.Status),
			"Session":  row.ProviderSessionID,
		})
	}
	content, err := export.Render(dataset, format)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to render export")
	}

	entry := models.NewAuditEntry(adminID, models.AuditActionPaymentExport, models.AuditResourcePayments).
		WithValues(map[string]interface{}{"format": format, "rows": len(rows)}).
		From(meta.IP, meta.UserAgent)
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record export audit log", zap.Error(err))
	}

	return &dto.PaymentExport{
		Filename:    fmt.Sprintf("payments-%s.%s", s.now().UTC().Format("20060102"), format),
		ContentType: format.ContentType(),
		Content:     content,
	}, nil
}

func (s *PaymentService) openSession(ctx context.Context, userID string, item billing.Item) (*billing.CheckoutSession, error) {
	var customer billing.Customer
	if user, err := s.users.FindByID(ctx, userID); err == nil {
		first, last, _ := strings.Cut(strings.TrimSpace(user.FullName), " ")
		customer = billing.Customer{FirstName: first, LastName: last, Email: user.Email}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to load payer")
	}

	session, err := s.provider.CreateCheckoutSession(ctx, billing.CheckoutRequest{
		Amount:     item.Price,
		Currency:   s.config.Currency,
		Customer:   customer,
		Items:      []billing.Item{item},
		SuccessURL: s.config.SuccessURL,
		CancelURL:  s.config.CancelURL,
	})
	if err != nil {
		s.logger.Error("checkout session failed", zap.String("provider", s.provider.Name()), zap.Error(err))
		return nil, appErrors.ErrInternal.Wrap(err, "failed to open checkout session")
	}
	return session, nil
}

func (s *PaymentService) newPayment(userID string, kind models.PaymentType, item billing.Item, session *billing.CheckoutSession, reference models.CheckoutReference) *models.Payment {
	return &models.Payment{
		UserID:            userID,
		Type:              kind,
		Amount:            item.Price,
		Currency:          s.config.Currency,
		Status:            models.PaymentPending,
		Provider:          s.provider.Name(),
		ProviderSessionID: session.SessionID,
		Reference:         reference,
	}
}

func (s *PaymentService) recordAudit(ctx context.Context, actorID, action string, payment *models.Payment, meta RequestMeta) {
	entry := models.NewAuditEntry(actorID, action, models.AuditResourcePayments).
		On(payment.ID).
		From(meta.IP, meta.UserAgent).
		WithValues(map[string]interface{}{
			"type":   payment.Type,
			"amount": payment.Amount.StringFixed(2),
			"status": payment.Status,
		})
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record payment audit log", zap.String("action", action), zap.Error(err))
	}
}
