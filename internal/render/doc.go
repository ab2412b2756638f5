// Package render drives avatar video generation against an external render
// provider. A generation moves queued -> processing -> completed, failed, or
// timeout; polling and provider callbacks race toward the same terminal
// write, which the store applies compare-and-set so exactly one wins.
package render
