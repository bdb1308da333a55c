package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFilePersister(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		path         string
		existingData string
		data         string
		truncates    bool
	}{
		{
			name: "just_bundle",
			path: "flashcards.js",
			data: "window.initializeFlashcards = function () {};",
		},
		{
			name: "with_dir",
			path: "bundles/flashcards/flashcards.js",
			data: "var deck = [];",
		},
		{
			name:         "truncates",
			path:         "flashcards.etag",
			data:         `"deck-v2"`,
			truncates:    true,
			existingData: `"deck-v1-with-a-longer-tag"`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir, err := os.MkdirTemp("", "*")
			require.NoError(t, err)
			t.Cleanup(func() { _ = os.RemoveAll(dir) })
			p := filepath.Join(dir, tt.path)

			// We want to make sure that the persister truncates the existing
			// data and therefore overwrites existing data. This sets up a file
			// with some existing data that should be overwritten.
			if tt.truncates {
				err = os.WriteFile(p, []byte(tt.existingData), 0o600)
				require.NoError(t, err)
			}

			l := &LocalFilePersister{}
			err = l.Persist(context.Background(), p, strings.NewReader(tt.data))
			assert.NoError(t, err)

			i, err := os.Stat(p)
			require.NoError(t, err)
			assert.False(t, i.IsDir())

			f, err := l.Open(context.Background(), p)
			require.NoError(t, err)
			defer func() {
				err = f.Close()
				require.NoError(t, err)
			}()

			bb, err := io.ReadAll(f)
			require.NoError(t, err)

			if tt.truncates {
				assert.NotEqual(t, tt.existingData, string(bb))
			}

			assert.Equal(t, tt.data, string(bb))
		})
	}
}

func TestLocalFilePersisterOpenMissing(t *testing.T) {
	t.Parallel()

	l := &LocalFilePersister{}
	_, err := l.Open(context.Background(), filepath.Join(t.TempDir(), "missing.js"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
