// Package manager is the model lifecycle manager: a concurrency-safe cache of
// loaded model artifacts. It is structured into small files by concern:
//
//   - manager.go: Manager type, listing, readiness, Close.
//   - config.go: Config and package defaults; New applies defaults.
//   - types.go: Identity, LoadedModel and its category runtimes, Entry.
//   - errors.go: error types and helpers (IsNotFound, IsWrongCategory, IsLoadError).
//   - ensure.go: Acquire and the single-flight load path.
//   - unload.go: explicit unload and resource teardown.
//   - sweep.go: timestamp-based idle eviction and the background sweeper.
//   - status_report.go: /status projection.
//   - events.go, eventpub_memory.go: lifecycle event publishing.
//   - metrics.go: Prometheus collectors.
//
// Locking: m.mu guards the models map and entry states and is never held
// across an engine call. Each LoadedModel has its own teardown lock that
// engine calls hold for reading, so destroying a model waits for in-flight
// calls instead of pulling the context out from under them.
//
// External packages should construct one Manager per process with New and
// hand it to the HTTP layer explicitly.
package manager
