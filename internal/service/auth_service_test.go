package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/citywatch/dispatch-api/internal/models"
	"github.com/citywatch/dispatch-api/internal/repository"
	appErrors "github.com/citywatch/dispatch-api/pkg/errors"
)

type mockAuthRepo struct {
	mu       sync.Mutex
	users    map[string]*models.User
	tokens   map[string]*models.RefreshToken
	badgeSeq int
}

func newMockAuthRepo(users ...*models.User) *mockAuthRepo {
	m := &mockAuthRepo{users: make(map[string]*models.User), tokens: make(map[string]*models.RefreshToken)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) CreateOfficer(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateUser
		}
	}
	m.badgeSeq++
	badge := fmt.Sprintf("PD-%05d", m.badgeSeq)
	user.ID = fmt.Sprintf("user-%d", m.badgeSeq)
	user.Role = models.RoleOfficer
	user.BadgeNumber = &badge
	user.Active = true
	m.users[user.ID] = user
	return nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.UserID == userID {
			t.Revoked = true
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tokens[token]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.ID == id {
			t.Revoked = true
			t.RevokedAt = &revokedAt
		}
	}
	return nil
}

func authTestConfig() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "dispatch-api-test",
	}
}

func authTestUser(t *testing.T) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{
		ID:           "officer-1",
		Email:        "pat@pd.example",
		PasswordHash: string(hash),
		FullName:     "Pat Doyle",
		Role:         models.RoleOfficer,
		Active:       true,
	}
}

func TestLoginIssuesValidTokens(t *testing.T) {
	repo := newMockAuthRepo(authTestUser(t))
	svc := NewAuthService(repo, nil, nil, authTestConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "pat@pd.example", Password: "correct-horse"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "officer-1", claims.UserID)
	assert.Equal(t, models.RoleOfficer, claims.Role)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	repo := newMockAuthRepo(authTestUser(t))
	svc := NewAuthService(repo, nil, nil, authTestConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "pat@pd.example", Password: "nope"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	user := authTestUser(t)
	user.Active = false
	svc := NewAuthService(newMockAuthRepo(user), nil, nil, authTestConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "pat@pd.example", Password: "correct-horse"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErr.Code)
}

func TestRefreshTokenRotates(t *testing.T) {
	repo := newMockAuthRepo(authTestUser(t))
	svc := NewAuthService(repo, nil, nil, authTestConfig())

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "pat@pd.example", Password: "correct-horse"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// the used token is revoked; replay must fail
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
}

func TestLogoutRevokesToken(t *testing.T) {
	repo := newMockAuthRepo(authTestUser(t))
	svc := NewAuthService(repo, nil, nil, authTestConfig())

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "pat@pd.example", Password: "correct-horse"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), login.RefreshToken, "officer-1"))

	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
}

func TestRegisterOfficerAllocatesSequentialBadges(t *testing.T) {
	repo := newMockAuthRepo()
	svc := NewAuthService(repo, nil, nil, authTestConfig())

	first, err := svc.RegisterOfficer(context.Background(), RegisterOfficerRequest{
		Email: "a@pd.example", Password: "long-enough-pw", FullName: "A",
	})
	require.NoError(t, err)
	second, err := svc.RegisterOfficer(context.Background(), RegisterOfficerRequest{
		Email: "b@pd.example", Password: "long-enough-pw", FullName: "B",
	})
	require.NoError(t, err)

	require.NotNil(t, first.BadgeNumber)
	require.NotNil(t, second.BadgeNumber)
	assert.Equal(t, "PD-00001", *first.BadgeNumber)
	assert.Equal(t, "PD-00002", *second.BadgeNumber)
	assert.Equal(t, models.RoleOfficer, first.Role)
}

func TestRegisterOfficerDuplicateEmail(t *testing.T) {
	repo := newMockAuthRepo()
	svc := NewAuthService(repo, nil, nil, authTestConfig())

	_, err := svc.RegisterOfficer(context.Background(), RegisterOfficerRequest{
		Email: "a@pd.example", Password: "long-enough-pw", FullName: "A",
	})
	require.NoError(t, err)

	_, err = svc.RegisterOfficer(context.Background(), RegisterOfficerRequest{
		Email: "a@pd.example", Password: "long-enough-pw", FullName: "A again",
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}
