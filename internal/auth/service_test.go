package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/atlas-wms/atlas-wms/internal/shared"
)

type memoryRepo struct {
	users map[string]*User
}

func (r *memoryRepo) FindByUsername(ctx context.Context, username string) (*User, error) {
	user, ok := r.users[username]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return user, nil
}

func testService(t *testing.T) (*Service, *SessionStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := NewSessionStore(rdb, time.Hour)

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &memoryRepo{users: map[string]*User{
		"alice":    {ID: 1, Username: "alice", PasswordHash: string(hash), IsActive: true},
		"disabled": {ID: 2, Username: "disabled", PasswordHash: string(hash), IsActive: false},
	}}
	return NewService(repo, sessions), sessions
}

func TestLoginIssuesToken(t *testing.T) {
	svc, sessions := testService(t)
	ctx := context.Background()

	user, token, err := svc.Login(ctx, "alice", "correct horse")
	require.NoError(t, err)
	require.Equal(t, int64(1), user.ID)
	require.NotEmpty(t, token)

	actor, err := sessions.Resolve(ctx, token)
	require.NoError(t, err)
	require.Equal(t, shared.Actor{ID: 1, Username: "alice", Session: token}, actor)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	_, _, err := svc.Login(ctx, "alice", "wrong password")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "nobody", "correct horse")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "disabled", "correct horse")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLogoutInvalidatesToken(t *testing.T) {
	svc, sessions := testService(t)
	ctx := context.Background()

	_, token, err := svc.Login(ctx, "alice", "correct horse")
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx, token))

	_, err = sessions.Resolve(ctx, token)
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestRequireSessionMiddleware(t *testing.T) {
	svc, sessions := testService(t)
	ctx := context.Background()

	_, token, err := svc.Login(ctx, "alice", "correct horse")
	require.NoError(t, err)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := shared.ActorFromContext(r.Context())
		require.True(t, ok)
		require.Equal(t, "alice", actor.Username)
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireSession(sessions)(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
