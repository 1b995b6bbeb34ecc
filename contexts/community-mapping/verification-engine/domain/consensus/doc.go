// Package consensus holds the pure vote-weighting and classification rules.
//
// Nothing in this package touches storage or clocks: callers pass the ledger
// and the evaluation time, and the same inputs always yield the same
// aggregate and status.
package consensus
