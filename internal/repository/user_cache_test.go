package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campus-it/helpdesk-service/internal/domain"
)

type countingUsers struct {
	UserRepository
	gets int
}

func (c *countingUsers) GetByID(ctx context.Context, id string) (*domain.User, error) {
	c.gets++
	return c.UserRepository.GetByID(ctx, id)
}

func setupCache(t *testing.T) (*CachedUserRepository, *countingUsers, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	backing := &countingUsers{UserRepository: NewMemoryUserRepository()}
	return NewCachedUserRepository(backing, client, time.Minute, zap.NewNop()), backing, mr
}

func TestCachedUserReadThrough(t *testing.T) {
	ctx := context.Background()
	cache, backing, mr := setupCache(t)

	user := &domain.User{Email: "sam@school.test", FullName: "Sam", Role: domain.RoleITStaff, Active: true}
	require.NoError(t, cache.Create(ctx, user))

	first, err := cache.GetByID(ctx, user.ID)
	require.NoError(t, err)
	second, err := cache.GetByID(ctx, user.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, backing.gets)
	assert.Equal(t, first.Email, second.Email)
	assert.Equal(t, domain.RoleITStaff, second.Role)
	assert.True(t, mr.Exists(userCachePrefix+user.ID))
}

func TestCachedUserInvalidatedOnUpdate(t *testing.T) {
	ctx := context.Background()
	cache, backing, mr := setupCache(t)

	user := &domain.User{Email: "kim@school.test", FullName: "Kim", Role: domain.RoleTeacher, Active: true}
	require.NoError(t, cache.Create(ctx, user))
	_, err := cache.GetByID(ctx, user.ID)
	require.NoError(t, err)

	user.Role = domain.RoleAdmin
	require.NoError(t, cache.Update(ctx, user))
	assert.False(t, mr.Exists(userCachePrefix+user.ID))

	got, err := cache.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, got.Role)
	assert.Equal(t, 2, backing.gets)
}

func TestCachedUserFailsOpen(t *testing.T) {
	ctx := context.Background()
	cache, backing, mr := setupCache(t)

	user := &domain.User{Email: "lee@school.test", FullName: "Lee", Role: domain.RoleTeacher, Active: true}
	require.NoError(t, cache.Create(ctx, user))
	mr.Close()

	got, err := cache.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, 1, backing.gets)
}

func TestCachedUserNotFoundIsNotCached(t *testing.T) {
	ctx := context.Background()
	cache, _, mr := setupCache(t)

	_, err := cache.GetByID(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, mr.Exists(userCachePrefix+"ghost"))
}

func TestCachedUserNilClient(t *testing.T) {
	ctx := context.Background()
	cache := NewCachedUserRepository(NewMemoryUserRepository(), nil, 0, nil)

	user := &domain.User{Email: "no@cache.test", FullName: "No Cache", Role: domain.RoleTeacher}
	require.NoError(t, cache.Create(ctx, user))
	got, err := cache.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, got.Email)
}

func TestCachedUserOmitsPasswordHash(t *testing.T) {
	ctx := context.Background()
	cache, _, mr := setupCache(t)

	const hash = "$2a$12$abcdefghijklmnopqrstuvOPQRSTUVWXYZ0123456789abcdefghi"
	user := &domain.User{Email: "pat@school.test", FullName: "Pat", PasswordHash: hash, Role: domain.RoleTeacher, Active: true}
	require.NoError(t, cache.Create(ctx, user))

	miss, err := cache.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, miss.PasswordHash)

	raw, err := mr.Get(userCachePrefix + user.ID)
	require.NoError(t, err)
	assert.NotContains(t, raw, "password_hash")
	assert.NotContains(t, raw, hash)

	hit, err := cache.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, hit.PasswordHash)

	hit.FullName = "Pat Jones"
	require.NoError(t, cache.Update(ctx, hit))
	stored, err := cache.GetByEmail(ctx, user.Email)
	require.NoError(t, err)
	assert.Equal(t, "Pat Jones", stored.FullName)
	assert.Equal(t, hash, stored.PasswordHash)

	_, err = cache.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, mr.Exists(userCachePrefix+user.ID))
	require.NoError(t, cache.UpdatePasswordHash(ctx, user.ID, "rotated"))
	assert.False(t, mr.Exists(userCachePrefix+user.ID))
	stored, err = cache.GetByEmail(ctx, user.Email)
	require.NoError(t, err)
	assert.Equal(t, "rotated", stored.PasswordHash)
}
