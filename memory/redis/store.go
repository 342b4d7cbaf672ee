// Package redis stores session transcripts in Redis lists. The list
// length after RPUSH is the turn's sequence number, so appends are atomic
// without client-side locking.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	rds "github.com/redis/go-redis/v9"

	"github.com/KamdynS/weather-agents/memory"
)

// Store implements memory.SessionStore on a Redis client.
type Store struct {
	client rds.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewStore creates a store. Keys are "<prefix>:session:<id>"; a positive
// ttl is refreshed on every append.
func NewStore(client rds.UniversalClient, prefix string, ttl time.Duration) *Store {
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

// NewStoreFromURL parses a redis:// URL and creates a store owning its
// client.
func NewStoreFromURL(url, prefix string, ttl time.Duration) (*Store, error) {
	opts, err := rds.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewStore(rds.NewClient(opts), prefix, ttl), nil
}

func (s *Store) key(sessionID string) string {
	p := s.prefix
	if p != "" {
		p += ":"
	}
	return fmt.Sprintf("%ssession:%s", p, sessionID)
}

type storedTurn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Append implements memory.SessionStore.
func (s *Store) Append(ctx context.Context, sessionID, role, text string) (memory.Turn, error) {
	if err := memory.ValidateAppend(sessionID, role); err != nil {
		return memory.Turn{}, err
	}
	st := storedTurn{Role: role, Text: text, CreatedAt: time.Now().UTC()}
	b, err := json.Marshal(st)
	if err != nil {
		return memory.Turn{}, err
	}

	key := s.key(sessionID)
	var push *rds.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe rds.Pipeliner) error {
		push = pipe.RPush(ctx, key, b)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return memory.Turn{}, fmt.Errorf("append turn: %w", err)
	}
	return memory.Turn{Role: role, Text: text, Sequence: push.Val(), CreatedAt: st.CreatedAt}, nil
}

// Turns implements memory.SessionStore.
func (s *Store) Turns(ctx context.Context, sessionID string) ([]memory.Turn, error) {
	vals, err := s.client.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, rds.Nil) {
			return []memory.Turn{}, nil
		}
		return nil, fmt.Errorf("load turns: %w", err)
	}
	turns := make([]memory.Turn, 0, len(vals))
	for i, v := range vals {
		var st storedTurn
		if err := json.Unmarshal([]byte(v), &st); err != nil {
			return nil, fmt.Errorf("decode turn %d: %w", i+1, err)
		}
		turns = append(turns, memory.Turn{Role: st.Role, Text: st.Text, Sequence: int64(i) + 1, CreatedAt: st.CreatedAt})
	}
	return turns, nil
}

// Reset implements memory.SessionStore.
func (s *Store) Reset(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.key(sessionID)).Err()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

var _ memory.SessionStore = (*Store)(nil)
