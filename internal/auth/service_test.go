package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/coachdesk/coachdesk/internal/shared"
)

type mockRepo struct {
	usersByEmail map[string]*User
	sessions     map[string]int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{usersByEmail: map[string]*User{}, sessions: map[string]int64{}}
}

func (m *mockRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	u, ok := m.usersByEmail[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

func (m *mockRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	m.sessions[id] = userID
	return nil
}

func (m *mockRepo) DeleteSession(ctx context.Context, id string) error {
	delete(m.sessions, id)
	return nil
}

var _ Repository = (*mockRepo)(nil)

func addUser(t *testing.T, repo *mockRepo, email, password string, active bool) *User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	u := &User{ID: int64(len(repo.usersByEmail) + 1), Email: email, PasswordHash: string(hash), IsActive: active}
	repo.usersByEmail[email] = u
	return u
}

func TestAuthenticateSuccess(t *testing.T) {
	repo := newMockRepo()
	want := addUser(t, repo, "dana@example.com", "correct horse", true)
	svc := NewService(repo)

	got, err := svc.Authenticate(context.Background(), "dana@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
}

func TestAuthenticateWrongPassword(t *testing.T) {
	repo := newMockRepo()
	addUser(t, repo, "dana@example.com", "correct horse", true)
	svc := NewService(repo)

	_, err := svc.Authenticate(context.Background(), "dana@example.com", "battery staple")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestAuthenticateUnknownEmail(t *testing.T) {
	svc := NewService(newMockRepo())

	_, err := svc.Authenticate(context.Background(), "nobody@example.com", "whatever1")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestAuthenticateInactiveAccount(t *testing.T) {
	repo := newMockRepo()
	addUser(t, repo, "dana@example.com", "correct horse", false)
	svc := NewService(repo)

	_, err := svc.Authenticate(context.Background(), "dana@example.com", "correct horse")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestSessionLifecycle(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)

	require.NoError(t, svc.RegisterSession(context.Background(), "sess-1", 7, time.Now().Add(time.Hour), "127.0.0.1", "test"))
	assert.Contains(t, repo.sessions, "sess-1")

	require.NoError(t, svc.RemoveSession(context.Background(), "sess-1"))
	assert.NotContains(t, repo.sessions, "sess-1")
}
