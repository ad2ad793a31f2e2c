package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fimbiz-sync/internal/database/models"
	"fimbiz-sync/internal/store/storetest"
)

// deadRedis returns a client with no server behind it. Cache writes and
// invalidations are best-effort, so the service must work without redis.
func deadRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func newTestService(mem *storetest.Mem) *Service {
	return NewService(mem, deadRedis(), "test-secret", time.Hour, zap.NewNop())
}

func seedAccount(mem *storetest.Mem) *models.Account {
	account := models.Account{
		ID:           uuid.New(),
		ContractorID: uuid.New(),
		Email:        "user@example.com",
		IsActive:     true,
	}
	mem.AddAccount(account)
	return &account
}

func TestIssueAndValidate(t *testing.T) {
	mem := storetest.NewMem()
	s := newTestService(mem)
	account := seedAccount(mem)

	token, session, err := s.Issue(context.Background(), account.ID)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.True(t, session.IsActive)

	got, err := s.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, account.ID, got.AccountID)
}

func TestValidateRejectsGarbage(t *testing.T) {
	mem := storetest.NewMem()
	s := newTestService(mem)

	_, err := s.Validate(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	mem := storetest.NewMem()
	account := seedAccount(mem)

	issuer := NewService(mem, deadRedis(), "secret-a", time.Hour, zap.NewNop())
	token, _, err := issuer.Issue(context.Background(), account.ID)
	require.NoError(t, err)

	verifier := NewService(mem, deadRedis(), "secret-b", time.Hour, zap.NewNop())
	_, err = verifier.Validate(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestValidateRejectsRevokedSession(t *testing.T) {
	mem := storetest.NewMem()
	s := newTestService(mem)
	account := seedAccount(mem)

	token, session, err := s.Issue(context.Background(), account.ID)
	require.NoError(t, err)

	n, err := s.RevokeByIDs(context.Background(), []uuid.UUID{session.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Validate(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestRevokeAccount(t *testing.T) {
	mem := storetest.NewMem()
	s := newTestService(mem)
	account := seedAccount(mem)

	_, _, err := s.Issue(context.Background(), account.ID)
	require.NoError(t, err)
	_, _, err = s.Issue(context.Background(), account.ID)
	require.NoError(t, err)

	n, err := s.RevokeAccount(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	active, err := s.ActiveSessions(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestActiveSessionsExcludeExpired(t *testing.T) {
	mem := storetest.NewMem()
	s := newTestService(mem)
	account := seedAccount(mem)

	_, live, err := s.Issue(context.Background(), account.ID)
	require.NoError(t, err)

	// Still flagged active, but past its expiry.
	expired := &models.Session{
		ID:        uuid.New(),
		AccountID: account.ID,
		IsActive:  true,
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	require.NoError(t, mem.CreateSession(context.Background(), expired))

	active, err := s.ActiveSessions(context.Background(), account.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, live.ID, active[0].ID)
}

func TestRevokeContractor(t *testing.T) {
	mem := storetest.NewMem()
	s := newTestService(mem)
	account := seedAccount(mem)

	_, _, err := s.Issue(context.Background(), account.ID)
	require.NoError(t, err)

	n, err := s.RevokeContractor(context.Background(), account.ContractorID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Unknown contractor means no account, nothing to revoke.
	n, err = s.RevokeContractor(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
