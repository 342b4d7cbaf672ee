package chat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KamdynS/weather-agents/agent/core"
	"github.com/KamdynS/weather-agents/memory"
	"github.com/KamdynS/weather-agents/memory/inmemory"
)

func echo() core.Agent {
	return core.AgentFunc(func(ctx context.Context, in core.Message) (core.Message, error) {
		return core.Message{
			Role:    "assistant",
			Content: "echo: " + in.Content,
			Meta:    map[string]string{core.MetaState: "routed", core.MetaSpecialists: "a,b"},
		}, nil
	})
}

func TestSendRecordsBothTurns(t *testing.T) {
	store := inmemory.NewStore()
	svc := New(echo(), store)
	ctx := context.Background()

	reply, err := svc.Send(ctx, "s1", "  weather in Jakarta ")
	require.NoError(t, err)
	assert.Equal(t, "echo: weather in Jakarta", reply.Text)
	assert.Equal(t, "routed", reply.State)
	assert.Equal(t, []string{"a", "b"}, reply.Specialists)
	assert.Equal(t, int64(1), reply.User.Sequence)
	assert.Equal(t, int64(2), reply.Assistant.Sequence)

	turns, err := svc.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, memory.RoleUser, turns[0].Role)
	assert.Equal(t, "weather in Jakarta", turns[0].Text)
	assert.Equal(t, memory.RoleAssistant, turns[1].Role)
}

func TestNewSessionWhenIDEmpty(t *testing.T) {
	svc := New(echo(), inmemory.NewStore())
	reply, err := svc.Send(context.Background(), "", "hello")
	require.NoError(t, err)
	assert.Len(t, reply.SessionID, 36)

	_, err = svc.Send(context.Background(), "", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestAgentErrorBecomesApology(t *testing.T) {
	failing := core.AgentFunc(func(ctx context.Context, in core.Message) (core.Message, error) {
		return core.Message{}, errors.New("model unavailable")
	})
	svc := New(failing, inmemory.NewStore())

	reply, err := svc.Send(context.Background(), "s1", "weather?")
	require.NoError(t, err)
	assert.Equal(t, "Sorry, something went wrong: model unavailable", reply.Text)
	assert.Equal(t, StateError, reply.State)

	turns, err := svc.History(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, reply.Text, turns[1].Text)
}

func TestResetClearsHistory(t *testing.T) {
	svc := New(echo(), inmemory.NewStore())
	ctx := context.Background()
	_, err := svc.Send(ctx, "s1", "one")
	require.NoError(t, err)

	require.NoError(t, svc.Reset(ctx, "s1"))
	turns, err := svc.History(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, turns)

	reply, err := svc.Send(ctx, "s1", "two")
	require.NoError(t, err)
	assert.Equal(t, int64(1), reply.User.Sequence)
}

func TestOneRequestInFlightPerSession(t *testing.T) {
	var inFlight, peak atomic.Int32
	slow := core.AgentFunc(func(ctx context.Context, in core.Message) (core.Message, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return core.Message{Role: "assistant", Content: "ok"}, nil
	})
	store := inmemory.NewStore()
	svc := New(slow, store)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Send(context.Background(), "same", "weather?")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
	turns, err := svc.History(context.Background(), "same")
	require.NoError(t, err)
	require.Len(t, turns, 10)
	for i := 0; i < len(turns); i += 2 {
		assert.Equal(t, memory.RoleUser, turns[i].Role)
		assert.Equal(t, memory.RoleAssistant, turns[i+1].Role)
	}
	svc.mu.Lock()
	assert.Empty(t, svc.locks)
	svc.mu.Unlock()
}
