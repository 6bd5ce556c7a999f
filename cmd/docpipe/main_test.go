package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/docpipe"
	"github.com/poiesic/docpipe/ai/mock"
	"github.com/poiesic/docpipe/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

type cliEnv struct {
	configPath string
	dataDir    string
	files      string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	previous := openFunc
	openFunc = func(ctx context.Context, cfg *config.Config) (*docpipe.DocPipe, error) {
		return docpipe.Open(ctx, cfg, docpipe.WithProvider(mock.NewMockProvider()))
	}
	t.Cleanup(func() { openFunc = previous })

	root := t.TempDir()
	return &cliEnv{
		configPath: filepath.Join(root, "absent.toml"),
		dataDir:    filepath.Join(root, "data"),
		files:      t.TempDir(),
	}
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	var out, errOut bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &errOut
	app.ExitErrHandler = func(*cli.Context, error) {}

	full := append([]string{"docpipe", "--config", e.configPath, "--data-dir", e.dataDir, "--log-level", "error"}, args...)
	err := app.Run(full)
	return out.String(), err
}

func (e *cliEnv) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.files, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngestStatusSearch(t *testing.T) {
	env := newCLIEnv(t)
	report := env.writeFile(t, "report.txt", "Revenue grew in the northern region this quarter.")
	notes := env.writeFile(t, "notes.md", "# Notes\n\nShip the release on Friday.")

	out, err := env.run(t, "ingest", report, notes)
	require.NoError(t, err)
	assert.Contains(t, out, "success")
	assert.Contains(t, out, report)

	out, err = env.run(t, "ingest", report)
	require.NoError(t, err)
	assert.Contains(t, out, "cached")

	out, err = env.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "stored")
	assert.Contains(t, out, report)
	assert.Contains(t, out, notes)

	unseen := env.writeFile(t, "unseen.txt", "never ingested")
	out, err = env.run(t, "status", report, unseen)
	require.NoError(t, err)
	assert.Contains(t, out, "not processed")

	out, err = env.run(t, "search", "--query", "Revenue grew in the northern region this quarter.")
	require.NoError(t, err)
	assert.Contains(t, out, "report.txt")

	out, err = env.run(t, "reembed")
	require.NoError(t, err)
	assert.Contains(t, out, "in 2 documents (0 skipped)")

	out, err = env.run(t, "delete-all")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 2 documents")

	out, err = env.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "No documents.")

	out, err = env.run(t, "reembed")
	require.NoError(t, err)
	assert.Contains(t, out, "No stored documents.")
}

func TestIngestFailures(t *testing.T) {
	env := newCLIEnv(t)

	t.Run("requires files", func(t *testing.T) {
		_, err := env.run(t, "ingest")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "FILE")
	})

	t.Run("reports failed documents", func(t *testing.T) {
		empty := env.writeFile(t, "empty.txt", "")
		missing := filepath.Join(env.files, "missing.txt")

		out, err := env.run(t, "ingest", empty, missing)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "2 of 2 documents failed")
		assert.Contains(t, out, "permanent_failure")
		assert.Contains(t, out, "error")
	})

	t.Run("status shows the permanent failure", func(t *testing.T) {
		out, err := env.run(t, "status")
		require.NoError(t, err)
		assert.Contains(t, out, "(permanent)")
	})
}

func TestSearchRequiresQuery(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "search")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query")
}

func TestInvalidLogLevel(t *testing.T) {
	env := newCLIEnv(t)
	app := newApp()
	app.Writer = &bytes.Buffer{}
	app.ErrWriter = &bytes.Buffer{}
	err := app.Run([]string{"docpipe", "--config", env.configPath, "--log-level", "verbose", "status"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verbose")
}

func TestInitConfig(t *testing.T) {
	env := newCLIEnv(t)
	path := filepath.Join(t.TempDir(), "docpipe.toml")

	out, err := env.run(t, "init-config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	_, _, exists, err := config.Load(path)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = env.run(t, "init-config", path)
	assert.ErrorContains(t, err, "already exists")
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", snippet("a\n b\t\tc", 10))
	assert.Equal(t, "abcd…", snippet("abcdefgh", 5))
	assert.Equal(t, "ünï…", snippet("ünïcödé", 4))
}

func TestRenderTable(t *testing.T) {
	assert.Empty(t, renderTable(nil, nil, nil))

	out := renderTable([]string{"Name", "Count"}, [][]string{{"a", "1"}, {"b"}}, []columnAlignment{alignLeft, alignRight})
	assert.Contains(t, out, "NAME")
	assert.Equal(t, 1, strings.Count(out, " a "))
}

func TestProgressTracker(t *testing.T) {
	var buf bytes.Buffer
	tracker := newProgressTracker(&buf, 3)

	tracker.Record("success")
	assert.Empty(t, buf.String(), "nothing is reported before Start")

	tracker.Start()
	tracker.Record("success")
	tracker.Record("cached")
	tracker.Record("success")
	tracker.Record("success")
	tracker.Finish()

	output := buf.String()
	assert.Contains(t, output, "3/3")
	assert.Contains(t, output, "100.0%")
	assert.Contains(t, output, "cached=1 success=2")
	assert.True(t, strings.HasSuffix(output, "\n"))
}
