// Package research owns the two-phase research job lifecycle: raw
// collection followed by AI analysis. Jobs execute in background goroutines;
// failures land on the entity as a failed phase rather than propagating to
// the caller. At most one job per (source, query) key runs at a time, and a
// startup sweep reconciles jobs a previous daemon left mid-flight.
package research
