package main

import (
	"fmt"
	"io"

	"github.com/poiesic/docpipe/core"
	"github.com/poiesic/docpipe/search"
)

// explainMonitor writes the ranking steps of a search to w.
type explainMonitor struct {
	w io.Writer
}

var _ search.SearchMonitor = (*explainMonitor)(nil)

func (m *explainMonitor) Start(query string) {
	fmt.Fprintf(m.w, "query: %q\n", query)
}

func (m *explainMonitor) AfterSemanticSearch(matches []*core.SearchResult) {
	fmt.Fprintf(m.w, "%d candidates above similarity threshold\n", len(matches))
	for _, match := range matches {
		fmt.Fprintf(m.w, "  %.3f %s#%d\n", match.Score, match.Chunk.Fingerprint.Short(), match.Chunk.Index)
	}
}

func (m *explainMonitor) VerbatimHit(chunk *core.Chunk) {
	fmt.Fprintf(m.w, "verbatim boost: %s#%d\n", chunk.Fingerprint.Short(), chunk.Index)
}

func (m *explainMonitor) Finish(results []*core.SearchResult) {
	fmt.Fprintf(m.w, "%d results\n", len(results))
}
