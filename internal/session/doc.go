// Package session keeps multi-turn chat state for the lifetime of the
// process.
//
// A Session binds a client conversation to a generation context created from
// one loaded chat model. Sessions are keyed by a caller-supplied identifier
// (or a random one), accumulate the conversation in a fixed turn template,
// and expire after a window of inactivity. A successful prompt reschedules
// the expiry timer. Sessions bound to a model are released as soon as the
// manager destroys that model.
//
// Files:
//   - controller.go: Controller, the session table and lifecycle
//   - prompt.go: Prompt and PromptStreaming
//   - admission.go: one generation at a time per session
//   - template.go: turn markers and prompt rendering
//   - chunker.go: whitespace-boundary chunk batching for streams
//   - errors.go, metrics.go
package session
