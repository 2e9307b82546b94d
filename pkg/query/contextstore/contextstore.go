/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package contextstore keeps a short, per-session ring buffer of
// recent conversation turns in Redis so a follow-up question ("and
// what about the Southern Ocean?") can be interpreted against what was
// just asked. It is advisory: a Redis outage degrades the NL pipeline
// to stateless single-turn answers, it never fails a query.
package contextstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/argoplatform/argonaut/internal/config"
	"github.com/argoplatform/argonaut/pkg/datastorage/models"
)

const keyPrefix = "argonaut:session:"

// Store is a thin wrapper over a Redis list per session, capped at
// MaxTurns entries and refreshed with TTL on every append so an
// abandoned session's memory is reclaimed automatically.
type Store struct {
	client   redis.Cmdable
	maxTurns int64
	recent   int64
	ttl      time.Duration
	log      *zap.Logger
}

// New dials cfg.Addr and returns a ready Store.
func New(cfg config.ContextStoreConfig, log *zap.Logger) *Store {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	return NewWithClient(client, cfg, log)
}

// NewWithClient builds a Store around an already-constructed
// redis.Cmdable, so tests can point it at a miniredis instance instead
// of dialing a real server.
func NewWithClient(client redis.Cmdable, cfg config.ContextStoreConfig, log *zap.Logger) *Store {
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 10
	}
	recent := cfg.RecentTurns
	if recent <= 0 {
		recent = 3
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Store{client: client, maxTurns: int64(maxTurns), recent: int64(recent), ttl: ttl, log: log}
}

// Close releases the underlying client, when it owns a real
// connection (NewWithClient callers manage their own client lifetime).
func (s *Store) Close() error {
	if closer, ok := s.client.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// Append records turn at the head of sessionID's ring buffer,
// trimming it to maxTurns and refreshing its TTL. Any Redis failure is
// logged and swallowed: a lost turn degrades future context, it never
// fails the request that produced it.
func (s *Store) Append(ctx context.Context, sessionID string, turn models.ConversationTurn) {
	if sessionID == "" {
		return
	}
	data, err := json.Marshal(turn)
	if err != nil {
		s.log.Warn("marshal conversation turn failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}

	key := sessionKey(sessionID)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, s.maxTurns-1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn("append conversation turn failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// Recent returns up to RecentTurns turns for sessionID, oldest first.
// A Redis error or an empty/unknown session both return no turns (a
// nil or empty slice): the caller cannot distinguish "no history yet" from
// "history temporarily unavailable", and for prompt assembly it
// shouldn't need to.
func (s *Store) Recent(ctx context.Context, sessionID string) []models.ConversationTurn {
	if sessionID == "" {
		return nil
	}
	raw, err := s.client.LRange(ctx, sessionKey(sessionID), 0, s.recent-1).Result()
	if err != nil {
		if err != redis.Nil {
			s.log.Warn("fetch conversation history failed", zap.String("session_id", sessionID), zap.Error(err))
		}
		return nil
	}

	turns := make([]models.ConversationTurn, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- { // raw is newest-first (LPUSH); emit oldest-first
		var turn models.ConversationTurn
		if err := json.Unmarshal([]byte(raw[i]), &turn); err != nil {
			s.log.Warn("unmarshal conversation turn failed", zap.String("session_id", sessionID), zap.Error(err))
			continue
		}
		turns = append(turns, turn)
	}
	return turns
}

// Snippet renders Recent's result as a plain-text block suitable for
// the nlpipeline's prompt assembly, empty when there is no history.
func (s *Store) Snippet(ctx context.Context, sessionID string) string {
	turns := s.Recent(ctx, sessionID)
	if len(turns) == 0 {
		return ""
	}

	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "Q: %s\n", t.Text)
		if t.SQL != nil {
			fmt.Fprintf(&b, "SQL: %s\n", *t.SQL)
		}
		if t.RowCount != nil {
			fmt.Fprintf(&b, "Rows returned: %d\n", *t.RowCount)
		}
	}
	return b.String()
}

func sessionKey(sessionID string) string {
	return keyPrefix + sessionID
}
