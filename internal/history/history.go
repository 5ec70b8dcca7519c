// Package history implements the bounded per-channel message log on Redis
// sorted sets. The score is the message's sentAt timestamp, which makes the
// shared store the ground truth for ordering across gateway instances.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"glimmer/internal/cache"
	"glimmer/internal/models"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable is returned when the shared store is not reachable.
var ErrUnavailable = errors.New("history store unavailable")

// Store provides the bounded per-channel chat history window.
type Store struct {
	rdb *redis.Client
	cap int64
}

// NewStore returns a Store retaining at most `capacity` messages per channel.
func NewStore(rdb *redis.Client, capacity int) *Store {
	return &Store{rdb: rdb, cap: int64(capacity)}
}

// Cap returns the configured per-channel window size.
func (s *Store) Cap() int {
	return int(s.cap)
}

// AppendBounded atomically inserts the message scored by its sentAt timestamp
// and trims the oldest surplus beyond the window cap. Safe under concurrent
// appends from multiple router instances: both steps run in one transaction.
func (s *Store) AppendBounded(ctx context.Context, channel string, msg models.ChatMessage) error {
	if s.rdb == nil {
		return ErrUnavailable
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal chat message: %w", err)
	}

	key := cache.HistoryKey(channel)
	pipe := s.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(msg.SentAt.UnixMilli()),
		Member: payload,
	})
	pipe.ZRemRangeByRank(ctx, key, 0, -(s.cap + 1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append history for channel %s: %w", channel, err)
	}
	return nil
}

// Snapshot returns the full retained window, oldest first.
func (s *Store) Snapshot(ctx context.Context, channel string) ([]models.ChatMessage, error) {
	if s.rdb == nil {
		return nil, ErrUnavailable
	}

	raw, err := s.rdb.ZRange(ctx, cache.HistoryKey(channel), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read history for channel %s: %w", channel, err)
	}
	return decodeAll(raw)
}

// ReadRange returns messages with from <= sentAt <= to, oldest first.
func (s *Store) ReadRange(ctx context.Context, channel string, from, to time.Time) ([]models.ChatMessage, error) {
	if s.rdb == nil {
		return nil, ErrUnavailable
	}

	raw, err := s.rdb.ZRangeByScore(ctx, cache.HistoryKey(channel), &redis.ZRangeBy{
		Min: strconv.FormatInt(from.UnixMilli(), 10),
		Max: strconv.FormatInt(to.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read history range for channel %s: %w", channel, err)
	}
	return decodeAll(raw)
}

// DeleteByMsgID scans the retained window for the message with the given id
// and removes it. The scan cost is bounded by the window cap. Returns false
// when no retained message matches (the message may have aged out or was
// never durably stored).
func (s *Store) DeleteByMsgID(ctx context.Context, channel, msgID string) (bool, error) {
	if s.rdb == nil {
		return false, ErrUnavailable
	}

	key := cache.HistoryKey(channel)
	raw, err := s.rdb.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return false, fmt.Errorf("scan history for channel %s: %w", channel, err)
	}

	for _, member := range raw {
		var msg models.ChatMessage
		if err := json.Unmarshal([]byte(member), &msg); err != nil {
			continue
		}
		if msg.MsgID != msgID {
			continue
		}
		removed, err := s.rdb.ZRem(ctx, key, member).Result()
		if err != nil {
			return false, fmt.Errorf("delete message %s from channel %s: %w", msgID, channel, err)
		}
		return removed > 0, nil
	}
	return false, nil
}

// Rename atomically migrates a channel's full history window to a new channel
// name, preserving order and scores. A channel with no retained history is a
// successful no-op.
func (s *Store) Rename(ctx context.Context, oldChannel, newChannel string) error {
	if s.rdb == nil {
		return ErrUnavailable
	}

	oldKey := cache.HistoryKey(oldChannel)
	exists, err := s.rdb.Exists(ctx, oldKey).Result()
	if err != nil {
		return fmt.Errorf("check history for channel %s: %w", oldChannel, err)
	}
	if exists == 0 {
		return nil
	}
	if err := s.rdb.Rename(ctx, oldKey, cache.HistoryKey(newChannel)).Err(); err != nil {
		return fmt.Errorf("rename history %s -> %s: %w", oldChannel, newChannel, err)
	}
	return nil
}

func decodeAll(raw []string) ([]models.ChatMessage, error) {
	messages := make([]models.ChatMessage, 0, len(raw))
	for _, member := range raw {
		var msg models.ChatMessage
		if err := json.Unmarshal([]byte(member), &msg); err != nil {
			// A corrupt entry should not poison the whole window.
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
