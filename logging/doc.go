// Package logging provides a minimal logging interface and adapters for ActionMesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that generators, the dispatcher and the shared state use for observability. This
// package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - StructuredLogger with component/task context and action/generator helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	mesh, err := actionmesh.New(registry, client, func(o *actionmesh.Options) { o.Logger = logger })
//
// The design intentionally keeps the interface minimal to avoid vendor lock-in
// while supporting structured logging where available.
package logging
