// Package feed reads governance proposals from a Koios-compatible indexer.
//
// The indexer is not trusted to honor its own filters: every timestamp
// filter sent to the server is re-applied to the returned records, and a
// server that rejects the filter is queried without it.
package feed
