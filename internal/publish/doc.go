// Package publish posts content to social platforms and reduces the
// per-platform outcomes into one PublishResult. Aggregation is pure and
// total: every requested platform gets exactly one result entry, with a
// synthetic error entry standing in for platforms that never answered.
package publish
