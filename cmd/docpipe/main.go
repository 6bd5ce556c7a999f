// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/poiesic/docpipe"
	"github.com/poiesic/docpipe/config"
	"github.com/poiesic/docpipe/core"
	"github.com/poiesic/docpipe/pipeline"
	"github.com/poiesic/docpipe/reembed"
	"github.com/poiesic/docpipe/storage"
	"github.com/urfave/cli/v2"
)

const configKey = "config"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:     "docpipe",
		Usage:    "Resumable document ingestion for retrieval",
		Metadata: map[string]interface{}{},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the TOML configuration file",
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Aliases: []string{"d"},
				Usage:   "Override storage.data_dir",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error); defaults to logging.level",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Extract, chunk, embed and store documents",
				ArgsUsage: "FILE...",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Discard cached progress and reprocess from scratch",
					},
				},
			},
			{
				Name:      "status",
				Usage:     "Show processing records for all documents or the given files",
				ArgsUsage: "[FILE...]",
				Action:    statusCommand,
			},
			{
				Name:   "search",
				Usage:  "Find stored chunks similar to a query",
				Action: searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "query",
						Aliases:  []string{"q"},
						Usage:    "Text to search for",
						Required: true,
					},
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of results",
						Value:   5,
					},
					&cli.BoolFlag{
						Name:  "explain",
						Usage: "Print how results were ranked to stderr",
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Regenerate vectors for all stored documents with the configured embedding model",
				Action: reembedCommand,
			},
			{
				Name:   "delete-all",
				Usage:  "Delete every stored chunk and processing record",
				Action: deleteAllCommand,
			},
			{
				Name:      "init-config",
				Usage:     "Write a sample configuration file",
				ArgsUsage: "[PATH]",
				Action:    initConfigCommand,
			},
		},
	}
}

// setup loads configuration and installs the default logger.
func setup(c *cli.Context) error {
	cfg, _, _, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if dir := c.String("data-dir"); dir != "" {
		if cfg.Storage.DataDir, err = config.ExpandPath(dir); err != nil {
			return err
		}
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Logging.Level = strings.ToLower(lvl)
	}
	if err := setupLogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return err
	}
	c.App.Metadata[configKey] = cfg
	return nil
}

func setupLogger(levelStr, format string) error {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

func configFrom(c *cli.Context) *config.Config {
	cfg, _ := c.App.Metadata[configKey].(*config.Config)
	if cfg == nil {
		defaults := config.Default()
		cfg = &defaults
	}
	return cfg
}

// openFunc is replaced in tests to avoid a live embedding service.
var openFunc = func(ctx context.Context, cfg *config.Config) (*docpipe.DocPipe, error) {
	return docpipe.Open(ctx, cfg)
}

func open(c *cli.Context) (*docpipe.DocPipe, error) {
	d, err := openFunc(c.Context, configFrom(c))
	if err != nil {
		return nil, fmt.Errorf("failed to open data directory: %w", err)
	}
	return d, nil
}

func ingestCommand(c *cli.Context) error {
	paths := c.Args().Slice()
	if len(paths) == 0 {
		return errors.New("at least one FILE is required")
	}

	d, err := open(c)
	if err != nil {
		return err
	}
	defer d.Close()

	tracker := newProgressTracker(c.App.ErrWriter, len(paths))
	tracker.Start()
	results := d.ProcessFiles(c.Context, paths, c.Bool("force"), func(r docpipe.FileResult) {
		tracker.Record(outcomeLabel(r))
	})
	tracker.Finish()

	failed := 0
	for _, r := range results {
		label := outcomeLabel(r)
		switch {
		case r.Err != nil:
			failed++
			fmt.Fprintf(c.App.Writer, "%-17s %s: %v\n", label, r.Path, r.Err)
		case !r.Result.OK() && r.Result.Outcome != pipeline.OutcomeInProgress:
			failed++
			fmt.Fprintf(c.App.Writer, "%-17s %s: %v\n", label, r.Path, r.Result.Err)
		default:
			fmt.Fprintf(c.App.Writer, "%-17s %s (%d chunks)\n", label, r.Path, r.Result.ChunkCount)
		}
	}
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d documents failed", failed, len(paths)), 1)
	}
	return nil
}

func outcomeLabel(r docpipe.FileResult) string {
	if r.Err != nil {
		return "error"
	}
	return r.Result.Outcome.String()
}

func statusCommand(c *cli.Context) error {
	d, err := open(c)
	if err != nil {
		return err
	}
	defer d.Close()

	headers := []string{"Fingerprint", "Stage", "Chunks", "Source", "Updated", "Failure"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft}

	var rows [][]string
	if c.Args().Len() == 0 {
		records, err := d.List(c.Context)
		if err != nil {
			return err
		}
		for _, rec := range records {
			rows = append(rows, recordRow(rec))
		}
	} else {
		for _, path := range c.Args().Slice() {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			fp := core.FingerprintOf(data)
			rec, err := d.Status(c.Context, fp)
			if errors.Is(err, storage.ErrNotFound) {
				rows = append(rows, []string{fp.Short(), "not processed", "", path, "", ""})
				continue
			}
			if err != nil {
				return err
			}
			rows = append(rows, recordRow(rec))
		}
	}

	if len(rows) == 0 {
		fmt.Fprintln(c.App.Writer, "No documents.")
		return nil
	}
	fmt.Fprintln(c.App.Writer, renderTable(headers, rows, aligns))
	return nil
}

func recordRow(rec *core.ProcessingRecord) []string {
	stage := rec.Stage.String()
	failure := ""
	if rec.Stage == core.StageFailed {
		if rec.PermanentlyFailed() {
			stage += " (permanent)"
		} else {
			stage += " (resume at " + rec.ResumeStage.String() + ")"
		}
		failure = snippet(string(rec.Failure.Kind)+": "+rec.Failure.Message, 60)
	}
	chunks := ""
	if rec.Stage == core.StageStored {
		chunks = strconv.Itoa(rec.ChunkCount)
	}
	return []string{
		rec.Fingerprint.Short(),
		stage,
		chunks,
		rec.Source,
		rec.UpdatedAt.Local().Format(time.DateTime),
		failure,
	}
}

func searchCommand(c *cli.Context) error {
	d, err := open(c)
	if err != nil {
		return err
	}
	defer d.Close()

	var results []*core.SearchResult
	if c.Bool("explain") {
		results, err = d.SearchWithMonitor(c.Context, c.String("query"), c.Int("limit"), &explainMonitor{w: c.App.ErrWriter})
	} else {
		results, err = d.Search(c.Context, c.String("query"), c.Int("limit"))
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if len(results) == 0 {
		fmt.Fprintln(c.App.Writer, "No matches.")
		return nil
	}

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			strconv.FormatFloat(float64(r.Score), 'f', 3, 32),
			r.Chunk.Metadata.Filename,
			strconv.Itoa(r.Chunk.Index),
			snippet(r.Chunk.Content, 80),
		})
	}
	fmt.Fprintln(c.App.Writer, renderTable(
		[]string{"Score", "File", "Chunk", "Content"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft},
	))
	return nil
}

func snippet(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-1]) + "…"
}

func reembedCommand(c *cli.Context) error {
	d, err := open(c)
	if err != nil {
		return err
	}
	defer d.Close()

	records, err := d.List(c.Context)
	if err != nil {
		return err
	}
	total := 0
	for _, rec := range records {
		if rec.Stage == core.StageStored {
			total++
		}
	}
	if total == 0 {
		fmt.Fprintln(c.App.Writer, "No stored documents.")
		return nil
	}

	cfg := configFrom(c)
	fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", cfg.Embedding.Host)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", cfg.Embedding.Model)

	tracker := newProgressTracker(c.App.ErrWriter, total)
	tracker.Start()
	stats, err := d.Reembed(c.Context, func(p reembed.Progress) {
		if p.Skipped {
			tracker.Record("skipped")
		} else {
			tracker.Record("reembedded")
		}
	})
	tracker.Finish()
	if err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Reembedded %d chunks in %d documents (%d skipped).\n",
		stats.Chunks, stats.Documents, stats.Skipped)
	return nil
}

func deleteAllCommand(c *cli.Context) error {
	d, err := open(c)
	if err != nil {
		return err
	}
	defer d.Close()

	n, err := d.InvalidateAll(c.Context)
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Deleted %d documents.\n", n)
	return nil
}

func initConfigCommand(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		path = c.String("config")
	}
	if path == "" {
		var err error
		if path, err = config.DefaultConfigPath(); err != nil {
			return err
		}
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := config.CreateSample(path); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Wrote %s\n", path)
	return nil
}
