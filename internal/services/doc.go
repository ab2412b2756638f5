// Package services holds cross-cutting helpers shared by pipeline
// components: the error taxonomy used to classify external failures and
// context annotation utilities for structured logging.
package services
