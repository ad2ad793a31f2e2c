// Package sessions manages cabinet sessions: issuing jwt tokens, validating
// them, and revoking them in bulk when the ERP demands it or a contractor's
// cabinet is disabled. The database row is authoritative; redis caches live
// tokens so revocation takes effect without waiting for expiry.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"fimbiz-sync/internal/database/models"
	"fimbiz-sync/internal/store"
)

const cachePrefix = "session:"

var ErrInvalidSession = errors.New("invalid or expired session")

type Claims struct {
	AccountID string `json:"account_id"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

type Service struct {
	store  store.Store
	redis  *redis.Client
	secret []byte
	ttl    time.Duration
	log    *zap.Logger
}

func NewService(st store.Store, rdb *redis.Client, secret string, ttl time.Duration, log *zap.Logger) *Service {
	return &Service{
		store:  st,
		redis:  rdb,
		secret: []byte(secret),
		ttl:    ttl,
		log:    log,
	}
}

func (s *Service) Issue(ctx context.Context, accountID uuid.UUID) (string, *models.Session, error) {
	now := time.Now()
	session := &models.Session{
		ID:        uuid.New(),
		AccountID: accountID,
		IsActive:  true,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return "", nil, err
	}

	claims := &Claims{
		AccountID: accountID.String(),
		SessionID: session.ID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   accountID.String(),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, err
	}

	if err := s.redis.Set(ctx, cachePrefix+session.ID.String(), accountID.String(), s.ttl).Err(); err != nil {
		s.log.Warn("session cache write failed", zap.Error(err))
	}
	return token, session, nil
}

func (s *Service) Validate(ctx context.Context, tokenStr string) (*models.Session, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidSession
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidSession
	}
	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return nil, ErrInvalidSession
	}

	session, err := s.store.SessionByID(ctx, sessionID)
	if err != nil {
		return nil, ErrInvalidSession
	}
	if !session.Live(time.Now()) {
		return nil, ErrInvalidSession
	}
	return session, nil
}

func (s *Service) ActiveSessions(ctx context.Context, accountID uuid.UUID) ([]models.Session, error) {
	return s.store.ActiveSessionsByAccount(ctx, accountID)
}

// RevokeByIDs deactivates the given sessions and drops their cache entries.
func (s *Service) RevokeByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	n, err := s.store.DeactivateSessions(ctx, ids)
	if err != nil {
		return 0, err
	}
	s.dropCache(ctx, ids)
	return n, nil
}

// RevokeAccount deactivates every active session of the account.
func (s *Service) RevokeAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	active, err := s.store.ActiveSessionsByAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	n, err := s.store.DeactivateAccountSessions(ctx, accountID)
	if err != nil {
		return 0, err
	}
	ids := make([]uuid.UUID, 0, len(active))
	for _, session := range active {
		ids = append(ids, session.ID)
	}
	s.dropCache(ctx, ids)
	return n, nil
}

// RevokeContractor force-expires every session of the contractor's account.
// A contractor without an account has nothing to revoke.
func (s *Service) RevokeContractor(ctx context.Context, contractorID uuid.UUID) (int64, error) {
	account, err := s.store.AccountByContractorID(ctx, contractorID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return s.RevokeAccount(ctx, account.ID)
}

func (s *Service) dropCache(ctx context.Context, ids []uuid.UUID) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, fmt.Sprintf("%s%s", cachePrefix, id))
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		s.log.Warn("session cache invalidation failed", zap.Error(err))
	}
}
