package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dmitrijs2005/fileshare/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStore_SaveOpenDelete(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "uploads")

	s, err := NewFSStore(root)
	require.NoError(t, err)

	n, err := s.Save(ctx, "files/2025/01/02/abc", strings.NewReader("hello"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	rc, err := s.Open(ctx, "files/2025/01/02/abc")
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello", string(b))

	entries, err := os.ReadDir(filepath.Join(root, "files", "2025", "01", "02"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must be renamed away")

	require.NoError(t, s.Delete(ctx, "files/2025/01/02/abc"))
	_, err = s.Open(ctx, "files/2025/01/02/abc")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	assert.NoError(t, s.Delete(ctx, "files/2025/01/02/abc"), "deleting twice is fine")
}

func TestFSStore_RejectsEscapingKeys(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"../evil", "/etc/passwd", "a/../../b"} {
		_, err := s.Save(context.Background(), key, strings.NewReader("x"), "")
		assert.ErrorIs(t, err, common.ErrValidation, key)

		_, err = s.Open(context.Background(), key)
		assert.ErrorIs(t, err, common.ErrValidation, key)
	}
}

func TestFSStore_SaveCancelled(t *testing.T) {
	root := t.TempDir()
	s, err := NewFSStore(root)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Save(ctx, "k", strings.NewReader("data"), "")
	require.ErrorIs(t, err, context.Canceled)

	_, err = os.Stat(filepath.Join(root, "k"))
	assert.True(t, os.IsNotExist(err), "no blob after a cancelled save")
}
