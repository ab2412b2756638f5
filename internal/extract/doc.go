// Package extract converts analyzed research into bounded video scripts.
// Extraction rules are data keyed by source, not per-source code: each rule
// names the analysis paths to collect, the title and body templates, and the
// length bounds the script must satisfy.
package extract
