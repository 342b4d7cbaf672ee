package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	rds "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KamdynS/weather-agents/memory"
	"github.com/KamdynS/weather-agents/memory/memorytest"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *rds.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := rds.NewClient(&rds.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func TestContract(t *testing.T) {
	memorytest.RunContract(t, func(t *testing.T) memory.SessionStore {
		_, client := setupRedis(t)
		return NewStore(client, "test", time.Minute)
	})
}

func TestKeysAndTTL(t *testing.T) {
	mr, client := setupRedis(t)
	s := NewStore(client, "weather", time.Hour)
	ctx := context.Background()

	_, err := s.Append(ctx, "abc", memory.RoleUser, "hello")
	require.NoError(t, err)
	assert.True(t, mr.Exists("weather:session:abc"))
	assert.Equal(t, time.Hour, mr.TTL("weather:session:abc"))

	mr.FastForward(30 * time.Minute)
	_, err = s.Append(ctx, "abc", memory.RoleAssistant, "hi")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, mr.TTL("weather:session:abc"))

	mr.FastForward(2 * time.Hour)
	turns, err := s.Turns(ctx, "abc")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestFromURL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	s, err := NewStoreFromURL("redis://"+mr.Addr(), "", 0)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Ping(context.Background()))

	_, err = s.Append(context.Background(), "x", memory.RoleUser, "hi")
	require.NoError(t, err)
	assert.True(t, mr.Exists("session:x"))

	_, err = NewStoreFromURL("not a url", "", 0)
	assert.Error(t, err)
}
