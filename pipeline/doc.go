// Package pipeline drives documents through extraction, chunking and
// storage, resuming from the last persisted stage.
//
// A run for one document:
//
//  1. fingerprint the raw bytes
//  2. take the document's lease (or report InProgress)
//  3. read the processing record, creating it on first sight
//  4. run only the stages after the recorded one, persisting each result
//     through the state manager before starting the next
//  5. release the lease on every exit path
//
// Content outcomes (success, cached success, in progress, failure,
// permanent failure) are reported in Result. The error return is reserved
// for infrastructure problems and caller cancellation.
//
// # Basic Usage
//
//	p, err := pipeline.NewPipeline(manager, extractor, chunker, store,
//	    pipeline.WithStageTimeout(2*time.Minute),
//	    pipeline.WithLease(10*time.Minute),
//	)
//	if err != nil {
//	    return err
//	}
//	defer p.Release()
//
//	res, err := p.Process(ctx, data, pipeline.ProcessOptions{Source: "report.pdf"})
package pipeline
