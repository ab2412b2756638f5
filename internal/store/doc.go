// Package store manages SQLite persistence for the pipeline entities:
// research jobs, video generations, campaigns, and publish results.
//
// Each entity type has a single owning component (research orchestrator,
// video generator, campaign scheduler, publish executor); the store enforces
// the cross-cutting invariants those owners rely on, in particular
// compare-and-set terminal writes for video generations and one-shot phase
// transitions for research jobs.
package store
