package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/campus-it/helpdesk-service/internal/domain"
)

const userCachePrefix = "helpdesk:user:"

// CachedUserRepository is a read-through Redis cache in front of a
// UserRepository. Lookups by id hit the cache; writes invalidate it. Redis
// failures are logged and the call falls through to the backing repository.
// Cached entries never hold the password hash, so users returned by GetByID
// carry an empty PasswordHash; credential checks go through GetByEmail.
type CachedUserRepository struct {
	next   UserRepository
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

type cachedUser struct {
	ID         string      `json:"id"`
	Email      string      `json:"email"`
	FullName   string      `json:"full_name"`
	Department *string     `json:"department,omitempty"`
	Role       domain.Role `json:"role"`
	Active     bool        `json:"active"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// NewCachedUserRepository wraps next. A nil client disables caching.
func NewCachedUserRepository(next UserRepository, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedUserRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedUserRepository{next: next, client: client, ttl: ttl, logger: logger}
}

func (r *CachedUserRepository) Create(ctx context.Context, user *domain.User) error {
	return r.next.Create(ctx, user)
}

func (r *CachedUserRepository) Update(ctx context.Context, user *domain.User) error {
	if err := r.next.Update(ctx, user); err != nil {
		return err
	}
	r.invalidate(ctx, user.ID)
	return nil
}

func (r *CachedUserRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	if err := r.next.UpdatePasswordHash(ctx, id, hash); err != nil {
		return err
	}
	r.invalidate(ctx, id)
	return nil
}

func (r *CachedUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if user, ok := r.lookup(ctx, id); ok {
		return user, nil
	}
	user, err := r.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.store(ctx, user)
	user.PasswordHash = ""
	return user, nil
}

func (r *CachedUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.next.GetByEmail(ctx, email)
}

func (r *CachedUserRepository) List(ctx context.Context, filter UserFilter) ([]domain.User, error) {
	return r.next.List(ctx, filter)
}

func (r *CachedUserRepository) lookup(ctx context.Context, id string) (*domain.User, bool) {
	if r.client == nil {
		return nil, false
	}
	raw, err := r.client.Get(ctx, userCachePrefix+id).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("user cache read failed", zap.String("user_id", id), zap.Error(err))
		}
		return nil, false
	}
	var cached cachedUser
	if err := json.Unmarshal(raw, &cached); err != nil {
		r.logger.Warn("user cache entry corrupt", zap.String("user_id", id), zap.Error(err))
		r.invalidate(ctx, id)
		return nil, false
	}
	return &domain.User{
		ID:         cached.ID,
		Email:      cached.Email,
		FullName:   cached.FullName,
		Department: cached.Department,
		Role:       cached.Role,
		Active:     cached.Active,
		CreatedAt:  cached.CreatedAt,
		UpdatedAt:  cached.UpdatedAt,
	}, true
}

func (r *CachedUserRepository) store(ctx context.Context, user *domain.User) {
	if r.client == nil {
		return
	}
	raw, err := json.Marshal(cachedUser{
		ID:         user.ID,
		Email:      user.Email,
		FullName:   user.FullName,
		Department: user.Department,
		Role:       user.Role,
		Active:     user.Active,
		CreatedAt:  user.CreatedAt,
		UpdatedAt:  user.UpdatedAt,
	})
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, userCachePrefix+user.ID, raw, r.ttl).Err(); err != nil {
		r.logger.Warn("user cache write failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}

func (r *CachedUserRepository) invalidate(ctx context.Context, id string) {
	if r.client == nil {
		return
	}
	if err := r.client.Del(ctx, userCachePrefix+id).Err(); err != nil {
		r.logger.Warn("user cache invalidate failed", zap.String("user_id", id), zap.Error(err))
	}
}
