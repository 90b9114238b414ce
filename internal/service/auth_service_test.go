package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ruangpulih/clinic-api/internal/models"
	appErrors "github.com/ruangpulih/clinic-api/pkg/errors"
)

type authRepoStub struct {
	users         map[string]models.User
	refreshTokens map[string]models.RefreshToken
	revoked       []string
	auditActions  []string
	lastLogin     *time.Time
}

func newAuthRepoStub() *authRepoStub {
	return &authRepoStub{
		users:         map[string]models.User{},
		refreshTokens: map[string]models.RefreshToken{},
	}
}

func (s *authRepoStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, user := range s.users {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := s.users[id]; ok {
		return &user, nil
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	s.lastLogin = &ts
	return nil
}

func (s *authRepoStub) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	s.refreshTokens[token.Token] = *token
	return nil
}

func (s *authRepoStub) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if stored, ok := s.refreshTokens[token]; ok {
		return &stored, nil
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	s.revoked = append(s.revoked, id)
	return nil
}

func (s *authRepoStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.auditActions = append(s.auditActions, log.Action)
	return nil
}

func authTestConfig() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "clinic-api-test",
	}
}

func seedUser(t *testing.T, repo *authRepoStub, password string, active bool) models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := models.User{
		ID:           "user-1",
		Email:        "reception@clinic.test",
		PasswordHash: string(hash),
		FullName:     "Front Desk",
		Role:         models.RoleReception,
		Active:       active,
	}
	repo.users[user.ID] = user
	return user
}

func TestAuthServiceLoginIssuesTokens(t *testing.T) {
	repo := newAuthRepoStub()
	seedUser(t, repo, "s3cret", true)
	svc := NewAuthService(repo, nil, nil, authTestConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "reception@clinic.test",
		Password: "s3cret",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, models.RoleReception, resp.User.Role)
	assert.Contains(t, repo.refreshTokens, resp.RefreshToken)
	assert.NotNil(t, repo.lastLogin)
	assert.Contains(t, repo.auditActions, models.AuditActionLogin)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleReception, claims.Role)
}

func TestAuthServiceLoginRejectsWrongPassword(t *testing.T) {
	repo := newAuthRepoStub()
	seedUser(t, repo, "s3cret", true)
	svc := NewAuthService(repo, nil, nil, authTestConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "reception@clinic.test",
		Password: "wrong",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginRejectsInactiveAccount(t *testing.T) {
	repo := newAuthRepoStub()
	seedUser(t, repo, "s3cret", false)
	svc := NewAuthService(repo, nil, nil, authTestConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "reception@clinic.test",
		Password: "s3cret",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshRotatesToken(t *testing.T) {
	repo := newAuthRepoStub()
	seedUser(t, repo, "s3cret", true)
	repo.refreshTokens["old-token"] = models.RefreshToken{
		ID:        "rt-1",
		UserID:    "user-1",
		Token:     "old-token",
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	svc := NewAuthService(repo, nil, nil, authTestConfig())

	resp, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "old-token"})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEqual(t, "old-token", resp.RefreshToken)
	assert.Contains(t, repo.revoked, "rt-1", "the used token is revoked on rotation")
	assert.Contains(t, repo.refreshTokens, resp.RefreshToken)
}

func TestAuthServiceRefreshRejectsExpiredToken(t *testing.T) {
	repo := newAuthRepoStub()
	seedUser(t, repo, "s3cret", true)
	repo.refreshTokens["stale"] = models.RefreshToken{
		ID:        "rt-1",
		UserID:    "user-1",
		Token:     "stale",
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
	}
	svc := NewAuthService(repo, nil, nil, authTestConfig())

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "stale"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLogoutChecksOwnership(t *testing.T) {
	repo := newAuthRepoStub()
	repo.refreshTokens["token-a"] = models.RefreshToken{
		ID:        "rt-1",
		UserID:    "user-1",
		Token:     "token-a",
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	svc := NewAuthService(repo, nil, nil, authTestConfig())

	err := svc.Logout(context.Background(), "token-a", "someone-else", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Logout(context.Background(), "token-a", "user-1", models.LoginRequest{}))
	assert.Contains(t, repo.revoked, "rt-1")
	assert.Contains(t, repo.auditActions, models.AuditActionLogout)
}

func TestAuthServiceValidateTokenRejectsForgedToken(t *testing.T) {
	repo := newAuthRepoStub()
	seedUser(t, repo, "s3cret", true)
	issuer := NewAuthService(repo, nil, nil, authTestConfig())

	resp, err := issuer.Login(context.Background(), models.LoginRequest{
		Email:    "reception@clinic.test",
		Password: "s3cret",
	})
	require.NoError(t, err)

	otherConfig := authTestConfig()
	otherConfig.AccessTokenSecret = "different-secret"
	verifier := NewAuthService(repo, nil, nil, otherConfig)

	_, err = verifier.ValidateToken(resp.AccessToken)
	require.Error(t, err)
}
