package main

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocuments(t *testing.T) {
	items := documents(slices.Values(paragraphs[:10]), 4)
	require.Len(t, items, 3)

	assert.Equal(t, "seed/note-001.md", items[0].Options.Source)
	assert.True(t, strings.HasPrefix(string(items[0].Data), "# Operations note 1\n\n"))
	assert.Equal(t, 4, strings.Count(string(items[0].Data), "\n\n"))
	assert.Contains(t, string(items[2].Data), paragraphs[9])

	assert.Empty(t, documents(slices.Values([]string{}), 4))
}

func TestLinesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.txt")
	require.NoError(t, os.WriteFile(path, []byte("first\n\n  second  \n"), 0o644))

	source, err := linesFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, slices.Collect(source))

	_, err = linesFromFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
