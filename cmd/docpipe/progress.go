package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// progressTracker reports ingestion progress on a single rewritten line.
// Record may be called from several goroutines.
type progressTracker struct {
	writer    io.Writer
	total     int
	done      int
	outcomes  map[string]int
	startTime time.Time
	started   bool
	mu        sync.Mutex
}

func newProgressTracker(writer io.Writer, total int) *progressTracker {
	return &progressTracker{
		writer:   writer,
		total:    total,
		outcomes: make(map[string]int),
	}
}

// Start begins tracking progress.
func (p *progressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	p.started = true
	p.done = 0
	clear(p.outcomes)
}

// Record counts one finished document with the given outcome label.
func (p *progressTracker) Record(outcome string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started || p.done >= p.total {
		return
	}
	p.done++
	p.outcomes[outcome]++
	p.report()
}

// Finish prints the final tally.
func (p *progressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.report()
	fmt.Fprintf(p.writer, "\n%s in %s\n", p.summary(), time.Since(p.startTime).Round(time.Millisecond))
}

// report prints the current progress. Must be called with lock held.
func (p *progressTracker) report() {
	elapsed := time.Since(p.startTime)
	rate := float64(p.done) / elapsed.Seconds()

	percentage := 0.0
	if p.total > 0 {
		percentage = float64(p.done) / float64(p.total) * 100.0
	}

	fmt.Fprintf(p.writer, "\rIngested: %d/%d (%.1f%%) - %.1f documents/s",
		p.done, p.total, percentage, rate)
}

// summary renders outcome counts in a stable order. Must be called with lock held.
func (p *progressTracker) summary() string {
	labels := make([]string, 0, len(p.outcomes))
	for label := range p.outcomes {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	parts := make([]string, len(labels))
	for i, label := range labels {
		parts[i] = fmt.Sprintf("%s=%d", label, p.outcomes[label])
	}
	if len(parts) == 0 {
		return "nothing processed"
	}
	return strings.Join(parts, " ")
}
