package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/whenwemeet/whenwemeet-api/internal/models"
	appErrors "github.com/whenwemeet/whenwemeet-api/pkg/errors"
)

type stubAuthRepo struct {
	user          *models.User
	refreshTokens map[string]*models.RefreshToken
	revokedIDs    []string
	lastLoginSet  bool
}

func newStubAuthRepo(user *models.User) *stubAuthRepo {
	return &stubAuthRepo{user: user, refreshTokens: make(map[string]*models.RefreshToken)}
}

func (s *stubAuthRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, sql.ErrNoRows
	}
	return s.user, nil
}

func (s *stubAuthRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, sql.ErrNoRows
	}
	return s.user, nil
}

func (s *stubAuthRepo) UpdateLastLogin(_ context.Context, _ string, _ time.Time) error {
	s.lastLoginSet = true
	return nil
}

func (s *stubAuthRepo) CreateRefreshToken(_ context.Context, token *models.RefreshToken) error {
	s.refreshTokens[token.Token] = token
	return nil
}

func (s *stubAuthRepo) FindRefreshToken(_ context.Context, token string) (*models.RefreshToken, error) {
	stored, ok := s.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return stored, nil
}

func (s *stubAuthRepo) RevokeRefreshToken(_ context.Context, id string, revokedAt time.Time) error {
	s.revokedIDs = append(s.revokedIDs, id)
	for _, token := range s.refreshTokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (s *stubAuthRepo) RevokeUserRefreshTokens(_ context.Context, userID string) error {
	for _, token := range s.refreshTokens {
		if token.UserID == userID {
			token.Revoked = true
		}
	}
	return nil
}

func testAuthService(repo *stubAuthRepo) *AuthService {
	return NewAuthService(repo, nil, nil, AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "whenwemeet-test",
	})
}

func testUser(t *testing.T, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{
		ID:           "user-1",
		Email:        "alex@example.com",
		PasswordHash: string(hash),
		Nickname:     "alex",
		Active:       true,
	}
}

func TestLoginIssuesTokenPair(t *testing.T) {
	repo := newStubAuthRepo(testUser(t, "correct-horse"))
	svc := testAuthService(repo)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "alex@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, "alex", resp.User.Nickname)
	assert.True(t, repo.lastLoginSet)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "alex@example.com", claims.Email)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	repo := newStubAuthRepo(testUser(t, "correct-horse"))
	svc := testAuthService(repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "alex@example.com", Password: "battery-staple"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginRejectsUnknownEmail(t *testing.T) {
	repo := newStubAuthRepo(testUser(t, "correct-horse"))
	svc := testAuthService(repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "nobody@example.com", Password: "correct-horse"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	user := testUser(t, "correct-horse")
	user.Active = false
	svc := testAuthService(newStubAuthRepo(user))

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "alex@example.com", Password: "correct-horse"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestRefreshRotatesToken(t *testing.T) {
	repo := newStubAuthRepo(testUser(t, "correct-horse"))
	svc := testAuthService(repo)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "alex@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// The consumed token cannot be replayed.
	_, err = svc.RefreshToken(context.Background(), models.RefreshRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestRefreshRejectsExpiredToken(t *testing.T) {
	repo := newStubAuthRepo(testUser(t, "correct-horse"))
	svc := testAuthService(repo)

	repo.refreshTokens["stale"] = &models.RefreshToken{
		ID:        "rt-1",
		UserID:    "user-1",
		Token:     "stale",
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
	}

	_, err := svc.RefreshToken(context.Background(), models.RefreshRequest{RefreshToken: "stale"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	repo := newStubAuthRepo(testUser(t, "correct-horse"))
	svc := testAuthService(repo)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "alex@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), models.LogoutRequest{RefreshToken: login.RefreshToken}))
	assert.Len(t, repo.revokedIDs, 1)

	// Logging out an unknown token is a no-op.
	require.NoError(t, svc.Logout(context.Background(), models.LogoutRequest{RefreshToken: "unknown"}))
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	svc := testAuthService(newStubAuthRepo(testUser(t, "correct-horse")))

	_, err := svc.ValidateToken("not-a-jwt")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	other := NewAuthService(newStubAuthRepo(testUser(t, "x")), nil, nil, AuthConfig{
		AccessTokenSecret: "different-secret",
		AccessTokenExpiry: time.Hour,
	})
	login, err := testAuthService(newStubAuthRepo(testUser(t, "correct-horse"))).Login(context.Background(), models.LoginRequest{Email: "alex@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	_, err = other.ValidateToken(login.AccessToken)
	require.Error(t, err)
}

func TestCurrentUserReturnsProfile(t *testing.T) {
	svc := testAuthService(newStubAuthRepo(testUser(t, "correct-horse")))

	info, err := svc.CurrentUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", info.ID)
	assert.Equal(t, "alex@example.com", info.Email)
	assert.Equal(t, "alex", info.Nickname)
}

func TestCurrentUserUnknownID(t *testing.T) {
	svc := testAuthService(newStubAuthRepo(testUser(t, "correct-horse")))

	_, err := svc.CurrentUser(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestCurrentUserInactiveAccount(t *testing.T) {
	user := testUser(t, "correct-horse")
	user.Active = false
	svc := testAuthService(newStubAuthRepo(user))

	_, err := svc.CurrentUser(context.Background(), "user-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}
