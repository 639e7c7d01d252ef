package tokenstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"digitlotto/domain/entities"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func token(id, coin string, amount int64) *entities.Token {
	return &entities.Token{ID: id, CoinID: coin, Amount: decimal.NewFromInt(amount)}
}

func TestFileStore_AppendListDelete(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	a := token("a", "coin", 100)
	require.NoError(t, store.Append(ctx, a))
	require.NoError(t, store.Append(ctx, token("b", "coin", 250)))
	require.NoError(t, store.Append(ctx, token("c", "other", 7)))

	assert.Equal(t, filepath.Join(store.dir, "a.json"), a.Location)

	tokens, err := store.List(ctx, "coin")
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "a", tokens[0].ID)
	assert.True(t, tokens[1].Amount.Equal(decimal.NewFromInt(250)))
	assert.NotEmpty(t, tokens[1].Location)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, store.Delete(ctx, "a"))
	require.NoError(t, store.Delete(ctx, "a"), "deleting twice is fine")

	tokens, err = store.List(ctx, "coin")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "b", tokens[0].ID)
}

func TestFileStore_AppendOverwritesSameID(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, token("x", "coin", 10)))
	require.NoError(t, store.Append(ctx, token("x", "coin", 20)))

	tokens, err := store.List(ctx, "coin")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.True(t, tokens[0].Amount.Equal(decimal.NewFromInt(20)))
}

func TestFileStore_SkipsJunk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".half-written.tmp"), []byte("{}"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zero.json"), []byte(`{"id":"zero","coin_id":"coin","amount":"0"}`), 0o600))
	require.NoError(t, store.Append(ctx, token("good", "coin", 5)))

	tokens, err := store.List(ctx, "coin")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "good", tokens[0].ID)
}

func TestFileStore_RejectsPathIDs(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, store.Append(context.Background(), token("../escape", "coin", 1)))
	assert.Error(t, store.Append(context.Background(), token("", "coin", 1)))
	assert.Error(t, store.Delete(context.Background(), "a/b"))
}
