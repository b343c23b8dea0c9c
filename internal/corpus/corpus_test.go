package corpus

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupePreservesFirstOccurrence(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Dedupe([]string{"a", "b", "a"}))
	assert.Equal(t, []string{"c", "a", "b"}, Dedupe([]string{"c", "a", "c", "b", "a", "b"}))
	assert.Empty(t, Dedupe(nil))
}

func TestDedupeDropsBlankIdentifiers(t *testing.T) {
	got := Dedupe([]string{"", "bafy1/path", "  ", "bafy1/path", "bafy2"})
	assert.Equal(t, []string{"bafy1/path", "bafy2"}, got)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest.json")
	require.NoError(t, os.WriteFile(path, []byte(`["cidA","cidB/sub/file.txt","cidA"]`), 0o600))

	c, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []string{"cidA", "cidB/sub/file.txt"}, c.Items())
}

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	_, err := Load(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

func TestLoadMalformed(t *testing.T) {
	cases := map[string]string{
		"object":  `{"cids":["a"]}`,
		"numbers": `[1,2,3]`,
		"null":    `null`,
		"garbage": `not json`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "latest.json")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			_, err := Load(context.Background(), path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed), "expected ErrMalformed, got %v", err)
			assert.Contains(t, err.Error(), path)
		})
	}
}

func TestNilCorpus(t *testing.T) {
	var c *Corpus
	assert.Equal(t, 0, c.Len())
	assert.Nil(t, c.Items())
}
