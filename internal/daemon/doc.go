// Package daemon coordinates the long-running reelflow process.
//
// It wires configuration, the SQLite store, the research orchestrator, the
// render generator, the campaign scheduler, and the publisher into a single
// lifecycle with flock-based locking to prevent multiple instances. The
// daemon exposes the operations the IPC layer serves and owns the webhook
// listener for asynchronous render callbacks.
//
// Keep orchestration logic here: individual pipeline steps live in their own
// packages while the daemon focuses on startup, shutdown, and high level
// coordination.
package daemon
