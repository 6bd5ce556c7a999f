// Package mock provides in-process embedders for tests.
//
// MockEmbedder hashes each text into a fixed unit vector, so the same chunk
// always lands at the same point and an exact-text query scores 1.0.
// Set EmbedTextFunc or EmbedTextsFunc to inject failures or custom vectors.
package mock
