package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edufin-api/internal/models"
	"github.com/noah-isme/edufin-api/internal/service"
	appErrors "github.com/noah-isme/edufin-api/pkg/errors"
)

type fakeAuthSrv struct {
	login      models.LoginRequest
	meta       service.RequestMeta
	logoutUser string
}

func (f *fakeAuthSrv) Login(_ context.Context, req models.LoginRequest, meta service.RequestMeta) (*models.LoginResponse, error) {
	f.login = req
	f.meta = meta
	if req.Password != "secret" {
		return nil, appErrors.ErrInvalidCredentials
	}
	return &models.LoginResponse{TokenPair: models.TokenPair{AccessToken: "access", RefreshToken: "refresh", TokenType: models.TokenTypeBearer}}, nil
}

func (f *fakeAuthSrv) RefreshToken(_ context.Context, req models.RefreshTokenRequest, _ service.RequestMeta) (*models.TokenPair, error) {
	if req.RefreshToken == "spent" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token is expired or revoked")
	}
	return &models.TokenPair{AccessToken: "access-2", RefreshToken: "refresh-2"}, nil
}

func (f *fakeAuthSrv) Logout(_ context.Context, userID string, _ models.RefreshTokenRequest, _ service.RequestMeta) error {
	f.logoutUser = userID
	return nil
}

func TestAuthHandlerLogin(t *testing.T) {
	srv := &fakeAuthSrv{}
	handler := NewAuthHandler(srv)
	c, rec := authedContext(http.MethodPost, "/auth/login", `{"email":"ada@example.com","password":"secret"}`, "")
	c.Request.Header.Set("User-Agent", "tests")

	handler.Login(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tests", srv.meta.UserAgent)
	assert.Equal(t, "ada@example.com", srv.login.Email)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "access", envelope.Data["access_token"])
	assert.Equal(t, "Bearer", envelope.Data["token_type"])
}

func TestAuthHandlerRefresh(t *testing.T) {
	handler := NewAuthHandler(&fakeAuthSrv{})

	c, rec := authedContext(http.MethodPost, "/auth/refresh", `{"refresh_token":"live"}`, "")
	handler.Refresh(c)
	require.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "refresh-2", envelope.Data["refresh_token"])

	c, rec = authedContext(http.MethodPost, "/auth/refresh", `{"refresh_token":"spent"}`, "")
	handler.Refresh(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandlerLoginFailures(t *testing.T) {
	handler := NewAuthHandler(&fakeAuthSrv{})

	c, rec := authedContext(http.MethodPost, "/auth/login", `{"email":`, "")
	handler.Login(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = authedContext(http.MethodPost, "/auth/login", `{"email":"ada@example.com","password":"wrong"}`, "")
	handler.Login(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandlerLogoutUsesCaller(t *testing.T) {
	srv := &fakeAuthSrv{}
	handler := NewAuthHandler(srv)
	c, _ := authedContext(http.MethodPost, "/auth/logout", `{"refresh_token":"refresh"}`, "student-1")

	handler.Logout(c)

	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Equal(t, "student-1", srv.logoutUser)
}

func TestAuthHandlerMe(t *testing.T) {
	handler := NewAuthHandler(&fakeAuthSrv{})
	c, rec := authedContext(http.MethodGet, "/auth/me", "", "student-1")

	handler.Me(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "student-1", envelope.Data["id"])
	assert.Equal(t, "STUDENT", envelope.Data["role"])
}
