// Package splitter provides a Chunker backed by langchaingo text splitters.
// Markdown documents are split on their structure; everything else uses a
// recursive character splitter.
package splitter
