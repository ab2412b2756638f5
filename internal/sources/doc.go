// Package sources collects raw research items from external data sources.
// Each collector normalizes its source's public JSON API into a RawDataset;
// no analysis happens here. HTTP failures are classified so the orchestrator
// can decide between retrying and failing the job outright.
package sources
