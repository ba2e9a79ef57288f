package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressCountsPercent(t *testing.T) {
	cases := []struct {
		counts ProgressCounts
		want   float64
	}{
		{ProgressCounts{Completed: 0, Total: 0}, 0},
		{ProgressCounts{Completed: 1, Total: 3}, 33.3},
		{ProgressCounts{Completed: 2, Total: 3}, 66.7},
		{ProgressCounts{Completed: 3, Total: 3}, 100},
		{ProgressCounts{Completed: 1, Total: 8}, 12.5},
		{ProgressCounts{Completed: 1, Total: 16}, 6.3},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.counts.Percent())
	}
}

func TestProgressCountsComplete(t *testing.T) {
	assert.False(t, ProgressCounts{}.Complete())
	assert.False(t, ProgressCounts{Completed: 2, Total: 3}.Complete())
	assert.True(t, ProgressCounts{Completed: 3, Total: 3}.Complete())
}

func TestNewCertificateCode(t *testing.T) {
	code := NewCertificateCode()
	require.Len(t, code, 13)
	assert.True(t, strings.HasPrefix(code, "CERT-"))
	assert.Equal(t, strings.ToUpper(code), code)
	assert.NotEqual(t, code, NewCertificateCode())
}

func TestPaymentStatusCanTransition(t *testing.T) {
	assert.True(t, PaymentPending.CanTransition(PaymentCompleted))
	assert.True(t, PaymentPending.CanTransition(PaymentFailed))
	assert.True(t, PaymentCompleted.CanTransition(PaymentRefunded))
	assert.False(t, PaymentCompleted.CanTransition(PaymentPending))
	assert.False(t, PaymentFailed.CanTransition(PaymentCompleted))
	assert.False(t, PaymentRefunded.CanTransition(PaymentCompleted))
}

func TestPaymentValidate(t *testing.T) {
	course := "course-1"
	sub := "sub-1"

	p := Payment{Type: PaymentTypeCourse, CourseID: &course, Amount: decimal.NewFromInt(10)}
	assert.NoError(t, p.Validate())

	p.SubscriptionID = &sub
	assert.Error(t, p.Validate())

	p = Payment{Type: PaymentTypeSubscription, SubscriptionID: &sub}
	assert.NoError(t, p.Validate())

	p = Payment{Type: PaymentTypeSubscription}
	assert.Error(t, p.Validate())

	p = Payment{Type: "gift", CourseID: &course}
	assert.Error(t, p.Validate())

	p = Payment{Type: PaymentTypeCourse, CourseID: &course, Amount: decimal.NewFromInt(-1)}
	assert.Error(t, p.Validate())
}

func TestCheckoutReferenceValueScan(t *testing.T) {
	ref := CheckoutReference{Version: 1, Kind: PaymentTypeCourse, CourseID: "c1", UserID: "u1"}
	raw, err := ref.Value()
	require.NoError(t, err)

	var decoded CheckoutReference
	require.NoError(t, decoded.Scan(raw))
	assert.Equal(t, ref, decoded)

	require.NoError(t, decoded.Scan(nil))
	assert.Equal(t, CheckoutReference{}, decoded)

	assert.Error(t, decoded.Scan(42))
}

func TestCheckoutReferenceOmitsEmptyTarget(t *testing.T) {
	raw, err := json.Marshal(CheckoutReference{Version: 1, Kind: PaymentTypeSubscription, SubscriptionTypeID: "plan", UserID: "u1"})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "course_id")
}

func TestSubscriptionActiveAt(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	end := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	assert.True(t, Subscription{Status: SubscriptionActive}.ActiveAt(now))
	assert.True(t, Subscription{Status: SubscriptionActive, EndDate: &end}.ActiveAt(now))
	assert.False(t, Subscription{Status: SubscriptionActive, EndDate: &past}.ActiveAt(now))
	assert.False(t, Subscription{Status: SubscriptionPending}.ActiveAt(now))
}

func TestSubscriptionTypePeriod(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	start, end := SubscriptionType{DurationDays: 30}.Period(now)
	assert.Equal(t, now, start)
	require.NotNil(t, end)
	assert.Equal(t, now.AddDate(0, 0, 30), *end)

	_, end = SubscriptionType{}.Period(now)
	assert.Nil(t, end)
}

func TestProfileStudyTimeDisplay(t *testing.T) {
	p := Profile{TotalStudySeconds: 3*3600 + 25*60 + 59}
	assert.Equal(t, int64(205), p.StudyMinutes())
	assert.Equal(t, "3h 25m", p.StudyTimeDisplay())
	assert.Equal(t, "45m", Profile{TotalStudySeconds: 45 * 60}.StudyTimeDisplay())
}

func TestBadgeCountersFor(t *testing.T) {
	c := BadgeCounters{CompletedLessons: 4, CurrentStreak: 2, StudyMinutes: 90, Engagement: 7}
	v, ok := c.For(BadgeTime)
	assert.True(t, ok)
	assert.Equal(t, int64(90), v)

	_, ok = c.For(BadgeSpecial)
	assert.False(t, ok)
}

func TestNormalizePage(t *testing.T) {
	page, size := NormalizePage(0, 0)
	assert.Equal(t, 1, page)
	assert.Equal(t, 20, size)

	page, size = NormalizePage(3, 500)
	assert.Equal(t, 3, page)
	assert.Equal(t, 20, size)
	assert.Equal(t, 40, PageOffset(3, 500))
	assert.Equal(t, 0, PageOffset(-1, 10))
}

func TestNewPagination(t *testing.T) {
	assert.Equal(t, &Pagination{Page: 2, PageSize: 10, TotalCount: 21, TotalPages: 3}, NewPagination(2, 10, 21))
	assert.Equal(t, 0, NewPagination(1, 10, 0).TotalPages)
	assert.Equal(t, 20, NewPagination(0, 0, 5).PageSize)
}

func TestParseRole(t *testing.T) {
	for input, want := range map[string]UserRole{"": RoleStudent, " admin ": RoleAdmin, "Instructor": RoleInstructor} {
		role, err := ParseRole(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, role)
	}
	_, err := ParseRole("superuser")
	assert.Error(t, err)
}

func TestUserDisplayName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", (&User{FullName: " Ada Lovelace ", Email: "ada@example.com"}).DisplayName())
	assert.Equal(t, "ada", (&User{Email: "ada@example.com"}).DisplayName())
	assert.Equal(t, "ada@example.com", NormalizeEmail("  ADA@Example.com "))
}

func TestAuditEntryBuilder(t *testing.T) {
	entry := NewAuditEntry("admin-1", AuditActionRefund, AuditResourcePayments).
		On("pay-1").
		From("10.0.0.1", "curl").
		WithValues(map[string]string{"status": "refunded"})

	require.NotNil(t, entry.UserID)
	assert.Equal(t, "admin-1", *entry.UserID)
	assert.Equal(t, "pay-1", *entry.ResourceID)
	assert.Equal(t, "10.0.0.1", entry.IPAddress)
	assert.JSONEq(t, `{"status":"refunded"}`, string(entry.NewValues))

	anonymous := NewAuditEntry("", AuditActionAdminRequest, AuditResourceAdmin).On("").WithValues(func() {})
	assert.Nil(t, anonymous.UserID)
	assert.Nil(t, anonymous.ResourceID)
	assert.Nil(t, anonymous.NewValues)
}

func TestRefreshTokenUsable(t *testing.T) {
	now := time.Now()
	live := RefreshToken{ExpiresAt: now.Add(time.Minute)}
	assert.True(t, live.Usable(now))
	assert.False(t, live.Usable(now.Add(time.Minute)))

	live.Revoked = true
	assert.False(t, live.Usable(now))

	digest := HashRefreshToken("raw")
	assert.Len(t, digest, 64)
	assert.Equal(t, digest, HashRefreshToken("raw"))
	assert.NotEqual(t, digest, HashRefreshToken("raw2"))
}
