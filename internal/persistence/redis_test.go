package persistence

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/campus-it/helpdesk-service/internal/config"
)

func TestNewRedisConnects(t *testing.T) {
	mr := miniredis.RunT(t)
	core, logs := observer.New(zap.InfoLevel)

	r := NewRedis(context.Background(), config.RedisConfig{Addr: mr.Addr()}, "", zap.New(core))
	t.Cleanup(r.Close)

	require.NoError(t, r.Ping(context.Background()))
	assert.Equal(t, 1, logs.FilterMessage("user cache connected").Len())
}

func TestNewRedisUnreachableIsNotFatal(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	core, logs := observer.New(zap.WarnLevel)

	r := NewRedis(context.Background(), config.RedisConfig{Addr: addr}, "", zap.New(core))
	t.Cleanup(r.Close)

	assert.Error(t, r.Ping(context.Background()))
	assert.Equal(t, 1, logs.FilterMessage("redis unreachable; user cache degraded").Len())
}

func TestNilRedisPing(t *testing.T) {
	var r *Redis
	assert.Error(t, r.Ping(context.Background()))
	assert.NotPanics(t, r.Close)
}
