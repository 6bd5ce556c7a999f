// Package reembed regenerates the vectors of stored chunks, typically after
// switching embedding models.
//
// Documents are visited one at a time under the same lease the pipeline
// uses, so a document being reprocessed concurrently is skipped rather than
// overwritten. Chunk text, metadata and ids are left unchanged.
package reembed
