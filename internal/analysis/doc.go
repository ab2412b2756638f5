// Package analysis turns raw research datasets into structured insight
// payloads using an OpenRouter-compatible chat completion API. The client
// forces JSON-only responses and tolerates the usual provider quirks
// (code-fenced payloads, streaming-shaped choices, Retry-After throttling).
package analysis
