package pipeline

import (
	"fmt"

	"github.com/poiesic/docpipe/core"
)

// Outcome classifies the result of processing one document.
type Outcome int

const (
	// OutcomeSuccess means the remaining stages ran and the document is stored.
	OutcomeSuccess Outcome = iota + 1

	// OutcomeCachedSuccess means the document was already stored; nothing ran.
	OutcomeCachedSuccess

	// OutcomeInProgress means another caller holds the document's lease.
	OutcomeInProgress

	// OutcomeFailure means a stage failed. Processing again resumes after
	// the last completed stage.
	OutcomeFailure

	// OutcomePermanentFailure means the input can never be processed.
	// Only different bytes will succeed.
	OutcomePermanentFailure
)

var outcomeNames = map[Outcome]string{
	OutcomeSuccess:          "success",
	OutcomeCachedSuccess:    "cached",
	OutcomeInProgress:       "in_progress",
	OutcomeFailure:          "failure",
	OutcomePermanentFailure: "permanent_failure",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Result reports what happened to one document.
type Result struct {
	Outcome     Outcome
	Fingerprint core.Fingerprint

	// ChunkCount is the number of stored chunks for Success and CachedSuccess.
	ChunkCount int

	// Record is the processing record as last written, when one exists.
	Record *core.ProcessingRecord

	// Err explains Failure and PermanentFailure outcomes. It is a
	// *core.StageError when a stage failed during this call.
	Err error
}

// OK reports whether the document is stored.
func (r *Result) OK() bool {
	return r.Outcome == OutcomeSuccess || r.Outcome == OutcomeCachedSuccess
}

func (r *Result) String() string {
	switch r.Outcome {
	case OutcomeSuccess, OutcomeCachedSuccess:
		return fmt.Sprintf("%s %s (%d chunks)", r.Fingerprint.Short(), r.Outcome, r.ChunkCount)
	case OutcomeFailure, OutcomePermanentFailure:
		return fmt.Sprintf("%s %s: %v", r.Fingerprint.Short(), r.Outcome, r.Err)
	}
	return fmt.Sprintf("%s %s", r.Fingerprint.Short(), r.Outcome)
}
