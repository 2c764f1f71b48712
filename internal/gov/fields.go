package gov

// Candidate keys for each logical field, in lookup order. The indexer has
// renamed these across API versions, so the first non-null key wins.
var (
	TxHashFields      = []string{"proposal_tx_hash", "tx_hash", "proposal_hash"}
	ActionIndexFields = []string{"proposal_index", "gov_action_index", "index"}
	OriginTimeFields  = []string{"block_time"}
)

// Field names read directly from raw proposals.
const (
	FieldProposalType  = "proposal_type"
	FieldTitle         = "title"
	FieldDeposit       = "deposit"
	FieldExpiration    = "expiration"
	FieldProposedEpoch = "proposed_epoch"
	FieldMetaJSON      = "meta_json"
	FieldMetaURL       = "meta_url"
	FieldMetaHash      = "meta_hash"
)
