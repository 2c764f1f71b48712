// Package gov holds the domain vocabulary shared by every other package:
// governance action identifiers (GAIDs), the loosely-typed raw proposal
// records returned by the indexer, persisted proposal and rationale records,
// and vote tallies.
//
// Key design constraints:
//   - gov imports nothing internal; all other packages may import gov.
//   - Raw records are never trusted to follow one schema. Every logical
//     field is read through an ordered list of candidate keys (see fields.go).
//   - A GAID is the only key used for persisted state.
package gov
