package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/edufin-api/internal/models"
	appErrors "github.com/noah-isme/edufin-api/pkg/errors"
)

// memoryAuthRepo keeps refresh tokens keyed by digest like the real table.
type memoryAuthRepo struct {
	users            map[string]*models.User
	tokens           map[string]*models.RefreshToken
	createRefreshErr error
	auditLogs        []*models.AuditLog
	lastLogin        time.Time
	revokedAllFor    []string
}

func newMemoryAuthRepo(users ...*models.User) *memoryAuthRepo {
	repo := &memoryAuthRepo{users: map[string]*models.User{}, tokens: map[string]*models.RefreshToken{}}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (m *memoryAuthRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryAuthRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memoryAuthRepo) UpdateLastLogin(_ context.Context, _ string, ts time.Time) error {
	m.lastLogin = ts
	return nil
}

func (m *memoryAuthRepo) CreateRefreshToken(_ context.Context, token *models.RefreshToken) error {
	if m.createRefreshErr != nil {
		return m.createRefreshErr
	}
	m.tokens[token.TokenHash] = token
	return nil
}

func (m *memoryAuthRepo) FindRefreshToken(_ context.Context, tokenHash string) (*models.RefreshToken, error) {
	if rt, ok := m.tokens[tokenHash]; ok {
		return rt, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memoryAuthRepo) RotateRefreshToken(_ context.Context, usedID string, next *models.RefreshToken) (bool, error) {
	for _, rt := range m.tokens {
		if rt.ID == usedID {
			if rt.Revoked {
				return false, nil
			}
			rt.Revoked = true
			m.tokens[next.TokenHash] = next
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryAuthRepo) RevokeRefreshToken(_ context.Context, id string, revokedAt time.Time) error {
	for _, rt := range m.tokens {
		if rt.ID == id {
			rt.Revoked = true
			rt.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *memoryAuthRepo) RevokeUserRefreshTokens(_ context.Context, userID string) error {
	m.revokedAllFor = append(m.revokedAllFor, userID)
	for _, rt := range m.tokens {
		if rt.UserID == userID {
			rt.Revoked = true
		}
	}
	return nil
}

func (m *memoryAuthRepo) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func (m *memoryAuthRepo) put(raw string, token *models.RefreshToken) {
	token.TokenHash = models.HashRefreshToken(raw)
	m.tokens[token.TokenHash] = token
}

func (m *memoryAuthRepo) byRaw(raw string) *models.RefreshToken {
	return m.tokens[models.HashRefreshToken(raw)]
}

func testAuthConfig() AuthConfig {
	return AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, RefreshTokenExpiry: 24 * time.Hour, Issuer: "edufin"}
}

func seededLearner(t *testing.T, active bool) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{ID: "u1", Email: "user@example.com", FullName: "Ada Learner", PasswordHash: string(hash), Active: active, Role: models.RoleStudent}
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	repo := newMemoryAuthRepo(seededLearner(t, true))
	svc := NewAuthService(repo, nil, zap.NewNop(), testAuthConfig())

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"}, RequestMeta{IP: "10.0.0.1", UserAgent: "tests"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, models.TokenTypeBearer, res.TokenType)
	assert.Equal(t, int64(3600), res.ExpiresIn)
	assert.Equal(t, models.RoleStudent, res.User.Role)
	assert.False(t, repo.lastLogin.IsZero())

	stored := repo.byRaw(res.RefreshToken)
	require.NotNil(t, stored, "refresh token must be stored by digest")
	assert.NotEqual(t, res.RefreshToken, stored.TokenHash)
	assert.Equal(t, "10.0.0.1", stored.IPAddress)

	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionLogin, repo.auditLogs[0].Action)
	assert.Equal(t, models.AuditResourceAuth, repo.auditLogs[0].Resource)
	assert.Equal(t, "tests", repo.auditLogs[0].UserAgent)
}

func TestAuthServiceLoginRejections(t *testing.T) {
	cases := []struct {
		name   string
		user   *models.User
		req    models.LoginRequest
		code   string
		fields map[string]string
	}{
		{name: "wrong password", user: seededLearner(t, true), req: models.LoginRequest{Email: "user@example.com", Password: "nope"}, code: appErrors.ErrInvalidCredentials.Code},
		{name: "unknown email", req: models.LoginRequest{Email: "ghost@example.com", Password: "password"}, code: appErrors.ErrInvalidCredentials.Code},
		{name: "inactive", user: seededLearner(t, false), req: models.LoginRequest{Email: "user@example.com", Password: "password"}, code: appErrors.ErrInactiveAccount.Code},
		{
			name:   "invalid payload",
			req:    models.LoginRequest{Email: "not-an-email"},
			code:   appErrors.ErrValidation.Code,
			fields: map[string]string{"email": "must be a valid email", "password": "is required"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMemoryAuthRepo()
			if tc.user != nil {
				repo = newMemoryAuthRepo(tc.user)
			}
			svc := NewAuthService(repo, nil, zap.NewNop(), testAuthConfig())

			_, err := svc.Login(context.Background(), tc.req, RequestMeta{})
			require.Error(t, err)
			appErr := appErrors.FromError(err)
			assert.Equal(t, tc.code, appErr.Code)
			for field, msg := range tc.fields {
				assert.Equal(t, msg, appErr.Fields[field])
			}
			assert.Empty(t, repo.tokens)
		})
	}
}

func TestAuthServiceLoginSingleSessionRevokesPrevious(t *testing.T) {
	repo := newMemoryAuthRepo(seededLearner(t, true))
	repo.put("older", &models.RefreshToken{ID: "rt0", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)})
	cfg := testAuthConfig()
	cfg.SingleSession = true
	svc := NewAuthService(repo, nil, zap.NewNop(), cfg)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"}, RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, repo.revokedAllFor)
	assert.True(t, repo.byRaw("older").Revoked)
}

func TestAuthServiceRefreshRotates(t *testing.T) {
	repo := newMemoryAuthRepo(seededLearner(t, true))
	repo.put("token", &models.RefreshToken{ID: "rt1", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)})
	svc := NewAuthService(repo, nil, zap.NewNop(), testAuthConfig())

	pair, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "token"}, RequestMeta{})
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEqual(t, "token", pair.RefreshToken)
	assert.True(t, repo.byRaw("token").Revoked)

	next := repo.byRaw(pair.RefreshToken)
	require.NotNil(t, next)
	assert.False(t, next.Revoked)
	assert.Empty(t, repo.revokedAllFor)
}

func TestAuthServiceRefreshReuseRevokesAllSessions(t *testing.T) {
	repo := newMemoryAuthRepo(seededLearner(t, true))
	repo.put("token", &models.RefreshToken{ID: "rt1", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)})
	svc := NewAuthService(repo, nil, zap.NewNop(), testAuthConfig())

	pair, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "token"}, RequestMeta{})
	require.NoError(t, err)

	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "token"}, RequestMeta{IP: "10.9.9.9"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
	assert.Equal(t, []string{"u1"}, repo.revokedAllFor)
	assert.True(t, repo.byRaw(pair.RefreshToken).Revoked, "the descendant of a replayed token is revoked too")

	last := repo.auditLogs[len(repo.auditLogs)-1]
	assert.Equal(t, models.AuditActionRefreshReuse, last.Action)
	assert.Equal(t, "10.9.9.9", last.IPAddress)
}

// racingAuthRepo loses every rotation, as if a concurrent request spent the
// token between lookup and revoke.
type racingAuthRepo struct {
	*memoryAuthRepo
}

func (racingAuthRepo) RotateRefreshToken(context.Context, string, *models.RefreshToken) (bool, error) {
	return false, nil
}

func TestAuthServiceRefreshLosingRaceCountsAsReuse(t *testing.T) {
	repo := newMemoryAuthRepo(seededLearner(t, true))
	repo.put("token", &models.RefreshToken{ID: "rt1", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)})
	svc := NewAuthService(racingAuthRepo{repo}, nil, zap.NewNop(), testAuthConfig())

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "token"}, RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
	assert.Equal(t, []string{"u1"}, repo.revokedAllFor)
	assert.Len(t, repo.tokens, 1, "no successor stored")
}

func TestAuthServiceRefreshRejections(t *testing.T) {
	repo := newMemoryAuthRepo(seededLearner(t, true))
	repo.put("old", &models.RefreshToken{ID: "rt1", UserID: "u1", ExpiresAt: time.Now().Add(-time.Minute)})
	repo.put("orphan", &models.RefreshToken{ID: "rt2", UserID: "gone", ExpiresAt: time.Now().Add(time.Hour)})
	svc := NewAuthService(repo, nil, zap.NewNop(), testAuthConfig())

	for _, raw := range []string{"old", "orphan", "never-issued"} {
		_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: raw}, RequestMeta{})
		require.Error(t, err, raw)
		assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code, raw)
	}
	assert.Empty(t, repo.revokedAllFor, "expiry is not reuse")
}

func TestAuthServiceLogout(t *testing.T) {
	repo := newMemoryAuthRepo()
	repo.put("tok", &models.RefreshToken{ID: "rt1", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)})
	svc := NewAuthService(repo, nil, zap.NewNop(), testAuthConfig())

	err := svc.Logout(context.Background(), "u2", models.RefreshTokenRequest{RefreshToken: "tok"}, RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.False(t, repo.byRaw("tok").Revoked)

	require.NoError(t, svc.Logout(context.Background(), "u1", models.RefreshTokenRequest{RefreshToken: "tok"}, RequestMeta{}))
	assert.True(t, repo.byRaw("tok").Revoked)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionLogout, repo.auditLogs[0].Action)
}

func TestValidateToken(t *testing.T) {
	svc := NewAuthService(newMemoryAuthRepo(), nil, zap.NewNop(), testAuthConfig())
	user := &models.User{ID: "u1", Email: "user@example.com", Role: models.RoleAdmin}
	token, err := svc.signAccessToken(user, time.Now())
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)

	other := NewAuthService(newMemoryAuthRepo(), nil, zap.NewNop(), AuthConfig{AccessTokenSecret: "different", AccessTokenExpiry: time.Hour, Issuer: "edufin"})
	_, err = other.ValidateToken(token)
	require.Error(t, err)

	stale, err := svc.signAccessToken(user, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = svc.ValidateToken(stale)
	require.Error(t, err)
}
