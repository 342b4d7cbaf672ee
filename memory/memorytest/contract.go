// Package memorytest holds the behavioural contract every
// memory.SessionStore must satisfy.
package memorytest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KamdynS/weather-agents/memory"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) memory.SessionStore

// RunContract runs the shared store tests.
func RunContract(t *testing.T, makeStore Factory) {
	t.Run("sequence", func(t *testing.T) { testSequence(t, makeStore(t)) })
	t.Run("isolation", func(t *testing.T) { testIsolation(t, makeStore(t)) })
	t.Run("reset", func(t *testing.T) { testReset(t, makeStore(t)) })
	t.Run("validation", func(t *testing.T) { testValidation(t, makeStore(t)) })
	t.Run("concurrent appends", func(t *testing.T) { testConcurrentAppends(t, makeStore(t)) })
}

func testSequence(t *testing.T, s memory.SessionStore) {
	ctx := context.Background()

	turns, err := s.Turns(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, turns)

	first, err := s.Append(ctx, "s1", memory.RoleUser, "hello")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Sequence)
	assert.False(t, first.CreatedAt.IsZero())

	second, err := s.Append(ctx, "s1", memory.RoleAssistant, "hi")
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Sequence)

	turns, err = s.Turns(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, memory.RoleUser, turns[0].Role)
	assert.Equal(t, "hello", turns[0].Text)
	assert.Equal(t, int64(1), turns[0].Sequence)
	assert.Equal(t, memory.RoleAssistant, turns[1].Role)
	assert.Equal(t, "hi", turns[1].Text)
	assert.Equal(t, int64(2), turns[1].Sequence)
}

func testIsolation(t *testing.T, s memory.SessionStore) {
	ctx := context.Background()
	_, err := s.Append(ctx, "a", memory.RoleUser, "from a")
	require.NoError(t, err)
	b, err := s.Append(ctx, "b", memory.RoleUser, "from b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.Sequence)

	turns, err := s.Turns(ctx, "a")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "from a", turns[0].Text)

	require.NoError(t, s.Reset(ctx, "a"))
	turns, err = s.Turns(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

func testReset(t *testing.T, s memory.SessionStore) {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := s.Append(ctx, "s1", memory.RoleUser, fmt.Sprintf("q%d", i))
		require.NoError(t, err)
	}
	require.NoError(t, s.Reset(ctx, "s1"))

	turns, err := s.Turns(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, turns)

	turn, err := s.Append(ctx, "s1", memory.RoleUser, "again")
	require.NoError(t, err)
	assert.Equal(t, int64(1), turn.Sequence)

	require.NoError(t, s.Reset(ctx, "never-used"))
}

func testValidation(t *testing.T, s memory.SessionStore) {
	ctx := context.Background()
	_, err := s.Append(ctx, "", memory.RoleUser, "x")
	assert.ErrorIs(t, err, memory.ErrInvalidTurn)
	_, err = s.Append(ctx, "s1", "system", "x")
	assert.ErrorIs(t, err, memory.ErrInvalidTurn)
}

func testConcurrentAppends(t *testing.T, s memory.SessionStore) {
	ctx := context.Background()
	const n = 20
	var wg sync.WaitGroup
	seqs := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			turn, err := s.Append(ctx, "busy", memory.RoleUser, fmt.Sprintf("m%d", i))
			if assert.NoError(t, err) {
				seqs <- turn.Sequence
			}
		}(i)
	}
	wg.Wait()
	close(seqs)

	seen := make(map[int64]bool)
	for seq := range seqs {
		assert.False(t, seen[seq], "duplicate sequence %d", seq)
		seen[seq] = true
	}
	for i := int64(1); i <= n; i++ {
		assert.True(t, seen[i], "missing sequence %d", i)
	}
	turns, err := s.Turns(ctx, "busy")
	require.NoError(t, err)
	require.Len(t, turns, n)
	for i, turn := range turns {
		assert.Equal(t, int64(i+1), turn.Sequence)
	}
}
