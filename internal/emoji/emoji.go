// Package emoji serves the channel emote directory. The directory is loaded
// from a source into a staging Redis hash and swapped over the live key in
// one RENAME, so a reload that drops names makes them disappear atomically.
package emoji

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"glimmer/internal/cache"
	"glimmer/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Source yields the full name->url mapping to serve.
type Source interface {
	Load(ctx context.Context) (map[string]string, error)
}

// GormSource loads the directory from the emojis table.
type GormSource struct {
	db *gorm.DB
}

// NewGormSource returns a Source backed by the emojis table.
func NewGormSource(db *gorm.DB) *GormSource {
	return &GormSource{db: db}
}

// Load implements Source.
func (s *GormSource) Load(ctx context.Context) (map[string]string, error) {
	var rows []models.Emoji
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	pairs := make(map[string]string, len(rows))
	for _, row := range rows {
		pairs[row.Name] = row.URL
	}
	return pairs, nil
}

// Directory is the serving copy of the emote directory.
type Directory struct {
	rdb *redis.Client
}

// NewDirectory returns a Directory served from Redis.
func NewDirectory(rdb *redis.Client) *Directory {
	return &Directory{rdb: rdb}
}

// Reload atomically replaces the entire directory with the source's current
// contents. Returns the number of entries now being served.
func (d *Directory) Reload(ctx context.Context, src Source) (int, error) {
	pairs, err := src.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load emoji source: %w", err)
	}

	if len(pairs) == 0 {
		if err := d.rdb.Del(ctx, cache.EmojiDirectoryKey).Err(); err != nil {
			return 0, err
		}
		return 0, nil
	}

	flat := make([]interface{}, 0, len(pairs)*2)
	for name, url := range pairs {
		flat = append(flat, name, url)
	}

	pipe := d.rdb.TxPipeline()
	pipe.Del(ctx, cache.EmojiDirectoryStagingKey)
	pipe.HSet(ctx, cache.EmojiDirectoryStagingKey, flat...)
	pipe.Rename(ctx, cache.EmojiDirectoryStagingKey, cache.EmojiDirectoryKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("swap emoji directory: %w", err)
	}
	return len(pairs), nil
}

// Get resolves one emote name to its URL.
func (d *Directory) Get(ctx context.Context, name string) (string, bool, error) {
	url, err := d.rdb.HGet(ctx, cache.EmojiDirectoryKey, name).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return url, true, nil
}

// Lookup resolves a batch of emote names; unknown names are omitted from the
// result rather than erroring, matching the inline chat protocol.
func (d *Directory) Lookup(ctx context.Context, names []string) (map[string]string, error) {
	if len(names) == 0 {
		return map[string]string{}, nil
	}

	values, err := d.rdb.HMGet(ctx, cache.EmojiDirectoryKey, names...).Result()
	if err != nil {
		return nil, err
	}

	result := make(map[string]string, len(names))
	for i, value := range values {
		if value == nil {
			continue
		}
		if url, ok := value.(string); ok {
			result[names[i]] = url
		}
	}
	return result, nil
}

// GetAll returns the full directory.
func (d *Directory) GetAll(ctx context.Context) (map[string]string, error) {
	pairs, err := d.rdb.HGetAll(ctx, cache.EmojiDirectoryKey).Result()
	if err != nil {
		return nil, err
	}
	return pairs, nil
}

// Search returns up to limit emote names containing the term,
// case-insensitive, sorted for stable results.
func (d *Directory) Search(ctx context.Context, term string, limit int) ([]string, error) {
	names, err := d.rdb.HKeys(ctx, cache.EmojiDirectoryKey).Result()
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(term)
	matches := make([]string, 0, limit)
	sort.Strings(names)
	for _, name := range names {
		if !strings.Contains(strings.ToLower(name), needle) {
			continue
		}
		matches = append(matches, name)
		if limit > 0 && len(matches) >= limit {
			break
		}
	}
	return matches, nil
}
