// Package harness runs offline lifecycle scenarios.
//
// A scenario drives the real engine and an in-memory store against fake
// collaborators: a scripted feed, an in-memory chat platform, a canned text
// generator and a controllable clock. Nothing touches the network, so a
// scenario replays identically every time.
//
// # Scenario Format
//
//	name: post_then_collect
//	description: "A proposal is posted once and collected once"
//	config:
//	  initial_block_time: 100
//	  poll_duration_minutes: 60
//	steps:
//	  - action: feed
//	    proposals:
//	      - { tx_hash: abc123, index: 1, block_time: 200 }
//	  - action: check
//	    expect: { posted: 1 }
//	  - action: vote
//	    gaid: "abc123#1"
//	    votes: { "Yes": 3, "No": 1 }
//	  - action: advance
//	    duration: 61m
//	  - action: collect
//	    expect: { processed: 1 }
//	assertions:
//	  - type: proposal
//	    gaid: "abc123#1"
//	    expect: { processed: true, final_vote: "Yes" }
//
// # Step Actions
//
//   - feed: replace the records the feed serves
//   - feed_error: make the feed fail (empty error clears it)
//   - check: run one posting pass
//   - collect: run one collection pass
//   - advance: move the clock forward
//   - vote: set the poll counts of a posted proposal
//   - comment: add a participant message to a proposal thread
//   - fail: make a chat operation fail (empty error clears it)
//   - delete_thread: remove a proposal thread from the chat platform
//   - generator_error: make text generation fail (empty error clears it)
//
// check and collect steps accept an expect map of item status counts.
//
// # Assertion Types
//
//   - proposal: a stored record matches the expected fields (thread_id,
//     poll_id, origin_time, processed, due, final_vote, final_rationale)
//   - absent: no record is stored for the GAID
//   - proposal_count: number of stored records
//   - rationale_count: number of rationales stored for a GAID
//   - thread_count: number of threads on the chat platform
//   - trace_contains: some pass reported the given GAID with a status
package harness
