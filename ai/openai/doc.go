// Package openai embeds text through an OpenAI-compatible /v1/embeddings
// endpoint using langchaingo's openai client.
//
// Requests are split into batches of ai.Config.BatchSize. Responses are
// checked for one vector per input and a consistent dimension, since a
// mismatched index would silently corrupt similarity search.
package openai
