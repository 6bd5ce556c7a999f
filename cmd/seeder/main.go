// Command seeder fills a development data directory with synthetic
// documents so search and status can be exercised without real files.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/poiesic/docpipe"
	"github.com/poiesic/docpipe/config"
	"github.com/poiesic/docpipe/pipeline"
)

var paragraphs = []string{
	"The nightly backup job copies the primary database to cold storage at 02:00 UTC.",
	"Restores are tested every quarter by rebuilding the staging cluster from the latest snapshot.",
	"On-call engineers acknowledge pages within fifteen minutes during business hours.",
	"Escalation goes to the platform lead when an incident lasts longer than one hour.",
	"Deployments are frozen during the last week of each quarter.",
	"Feature flags allow partial rollouts to five percent of traffic before general availability.",
	"The load balancer drains connections for thirty seconds before a node is removed.",
	"Certificates are renewed automatically thirty days before they expire.",
	"Log retention is ninety days for application logs and one year for audit logs.",
	"Access to production requires a hardware key and an approved change ticket.",
	"The cache is warmed from the previous day's most frequent queries after each deploy.",
	"Database migrations must be backwards compatible with the previous release.",
	"Customer data exports are encrypted and expire after seven days.",
	"Capacity reviews compare peak traffic against provisioned headroom every month.",
	"Runbooks live next to the service code and are reviewed with every major change.",
	"The status page is updated within ten minutes of a customer-facing incident.",
	"Postmortems are blameless and list at least one concrete follow-up action.",
	"Secrets are rotated after any engineer with access leaves the team.",
	"Synthetic checks exercise the login flow from three regions every minute.",
	"Disaster recovery drills fail over the entire region once a year.",
}

var (
	seedFileName = flag.String("src", "", "file of seed paragraphs, one per line")
	dataDir      = flag.String("data-dir", "./docpipe_dev", "data directory to seed")
	perDocument  = flag.Int("paragraphs", 4, "paragraphs per generated document")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
}

// linesFromFile returns an iterator over the non-blank lines in a file.
func linesFromFile(filename string) (iter.Seq[string], error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	return func(yield func(string) bool) {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if !yield(line) {
				return
			}
		}
	}, nil
}

// documents groups paragraphs into markdown documents of size paragraphs each.
func documents(source iter.Seq[string], size int) []pipeline.Item {
	var items []pipeline.Item
	var doc []string
	flush := func() {
		if len(doc) == 0 {
			return
		}
		n := len(items) + 1
		body := fmt.Sprintf("# Operations note %d\n\n%s\n", n, strings.Join(doc, "\n\n"))
		items = append(items, pipeline.Item{
			Data:    []byte(body),
			Options: pipeline.ProcessOptions{Source: fmt.Sprintf("seed/note-%03d.md", n)},
		})
		doc = doc[:0]
	}
	for p := range source {
		doc = append(doc, p)
		if len(doc) == size {
			flush()
		}
	}
	flush()
	return items
}

func main() {
	flag.Parse()
	ctx := context.Background()

	cfg := config.Default()
	cfg.Storage.DataDir = *dataDir
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	d, err := docpipe.Open(ctx, &cfg)
	if err != nil {
		panic(err)
	}
	defer d.Close()

	source := slices.Values(paragraphs)
	if *seedFileName != "" {
		if source, err = linesFromFile(*seedFileName); err != nil {
			panic(err)
		}
	}

	items := documents(source, max(*perDocument, 1))
	for _, item := range items {
		res, err := d.Process(ctx, item.Data, item.Options)
		if err != nil {
			panic(err)
		}
		slog.Info("seeded document", "source", item.Options.Source, "outcome", res.Outcome.String(), "chunks", res.ChunkCount)
	}
}
