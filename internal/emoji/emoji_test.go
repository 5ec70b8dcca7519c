package emoji

import (
	"context"
	"testing"

	"glimmer/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type mapSource map[string]string

func (s mapSource) Load(context.Context) (map[string]string, error) {
	return s, nil
}

func setupDirectory(t *testing.T) *Directory {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewDirectory(rdb)
}

func TestDirectory_ReloadReplacesAtomically(t *testing.T) {
	dir := setupDirectory(t)
	ctx := context.Background()

	count, err := dir.Reload(ctx, mapSource{
		"glimmerWave": "https://cdn.example.com/wave.png",
		"glimmerHype": "https://cdn.example.com/hype.png",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	url, ok, err := dir.Get(ctx, "glimmerWave")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://cdn.example.com/wave.png", url)

	// A reload that drops a name makes it disappear, not linger.
	count, err = dir.Reload(ctx, mapSource{
		"glimmerHype": "https://cdn.example.com/hype-v2.png",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, ok, err = dir.Get(ctx, "glimmerWave")
	require.NoError(t, err)
	assert.False(t, ok)

	url, ok, err = dir.Get(ctx, "glimmerHype")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://cdn.example.com/hype-v2.png", url)
}

func TestDirectory_ReloadEmptySourceClears(t *testing.T) {
	dir := setupDirectory(t)
	ctx := context.Background()

	_, err := dir.Reload(ctx, mapSource{"glimmerWave": "https://cdn.example.com/wave.png"})
	require.NoError(t, err)

	count, err := dir.Reload(ctx, mapSource{})
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	all, err := dir.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestDirectory_LookupOmitsUnknown(t *testing.T) {
	dir := setupDirectory(t)
	ctx := context.Background()

	_, err := dir.Reload(ctx, mapSource{
		"glimmerWave": "https://cdn.example.com/wave.png",
		"glimmerGG":   "https://cdn.example.com/gg.png",
	})
	require.NoError(t, err)

	got, err := dir.Lookup(ctx, []string{"glimmerWave", "noSuchEmote", "glimmerGG"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "https://cdn.example.com/wave.png", got["glimmerWave"])
	assert.NotContains(t, got, "noSuchEmote")

	empty, err := dir.Lookup(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDirectory_Search(t *testing.T) {
	dir := setupDirectory(t)
	ctx := context.Background()

	_, err := dir.Reload(ctx, mapSource{
		"glimmerWave":  "u1",
		"glimmerHype":  "u2",
		"glimmerLul":   "u3",
		"partyParrot":  "u4",
		"glimmerHeart": "u5",
	})
	require.NoError(t, err)

	results, err := dir.Search(ctx, "GLIMMER", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"glimmerHeart", "glimmerHype", "glimmerLul", "glimmerWave"}, results)

	limited, err := dir.Search(ctx, "glimmer", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	none, err := dir.Search(ctx, "kappa", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGormSource_Load(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Emoji{}))

	require.NoError(t, db.Create(&models.Emoji{Name: "glimmerWave", URL: "u1"}).Error)
	require.NoError(t, db.Create(&models.Emoji{Name: "glimmerHype", URL: "u2"}).Error)

	pairs, err := NewGormSource(db).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"glimmerWave": "u1", "glimmerHype": "u2"}, pairs)
}
