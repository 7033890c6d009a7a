package disk

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sensus/peek/internal/storage"
)

func TestScreenshots_PutOpenRemove(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	ref, err := s.Put(ctx, "user-1", []byte("png-bytes"), "image/png")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(ref, "user-1_"))
	require.Equal(t, ".png", filepath.Ext(ref))

	rc, ct, err := s.Open(ctx, ref)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "png-bytes", string(data))
	require.Equal(t, "image/png", ct)

	require.NoError(t, s.Remove(ctx, ref))
	_, err = os.Stat(filepath.Join(dir, ref))
	require.True(t, os.IsNotExist(err))

	_, _, err = s.Open(ctx, ref)
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, s.Remove(ctx, ref), "removing a missing file is a no-op")
}

func TestScreenshots_NameIsSanitized(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	ref, err := s.Put(context.Background(), "../evil/id", []byte("x"), "image/jpeg")
	require.NoError(t, err)
	require.Equal(t, ref, filepath.Base(ref))
	require.True(t, strings.HasPrefix(ref, "___evil_id_"))
	require.Equal(t, ".jpg", filepath.Ext(ref))
}

func TestScreenshots_OpenRejectsTraversal(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	for _, ref := range []string{"", "../x.png", "a/b.png", ".hidden"} {
		_, _, err := s.Open(context.Background(), ref)
		require.ErrorIs(t, err, storage.ErrNotFound, ref)
	}
}
