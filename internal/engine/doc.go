// Package engine implements the proposal lifecycle tracker.
//
// Each proposal moves through three states:
//
//	Unseen -> Posted -> Processed
//
// CheckProposals performs the Unseen -> Posted transition for every new
// record in the indexer feed. ProcessEndedPolls performs Posted -> Processed
// for every record whose poll deadline has passed.
//
// IDEMPOTENCE:
//
// Every durable decision is keyed by GAID and checked against the store
// before any platform call. Re-running either pass after a crash re-derives
// the same outstanding work: a proposal that was not yet inserted is posted
// again, one that was inserted is skipped. InsertProposal and
// CompleteCollection are the only commit points.
//
// PARTIAL FAILURE:
//
// Both passes are batches that tolerate per-record failure. A record that
// fails is logged, reported, and left in its previous state for the next
// run. Only failures that make the whole batch meaningless (watermark read,
// feed fetch, due query) are returned as errors.
//
// CONCURRENCY:
//
// The two passes share no in-memory state. They touch disjoint record
// states, so the store serializes them without extra locking. Inside one
// pass records are handled sequentially with a fixed delay between
// platform-mutating calls.
//
// SHUTDOWN:
//
// Cancelling the pass context stops a pass between records. A record that
// already started runs to its commit point on a detached context bounded by
// ItemTimeout, so a thread is never left live without its stored record.
//
// WATERMARK:
//
// The watermark is the highest stored origin time. Posting proceeds in
// ascending origin time, so a crash leaves the watermark at a prefix of the
// batch. A record that fails while a later one succeeds ends up at or below
// the watermark and is skipped on later runs.
package engine
