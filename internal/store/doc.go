// Package store provides SQLite-backed durable state for the proposal
// tracker. It is the single source of truth for idempotence.
//
// The store holds two tables:
//   - proposals: one row per posted governance action, keyed by GAID
//   - rationales: append-only participant rationales, foreign-keyed to proposals
//
// # Integrity Rules
//
// Insert-once: InsertProposal never overwrites. A second insert for the same
// GAID fails with ErrDuplicate; callers treat that as a logic error in their
// existence check, not as an expected condition.
//
// Process-once: MarkProcessed only moves a row from processed=0 to
// processed=1. A missing GAID fails with ErrNotFound, an already processed
// one with ErrAlreadyProcessed.
//
// CompleteCollection marks a row processed and appends the rationales of its
// thread in one transaction, so rationales are stored once per proposal.
// Every other operation is a single statement. No operation spans more than
// one proposal.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Wall-clock times are stored as INTEGER unix milliseconds in UTC.
package store
