package domain

// TokenMapping links an ERC-1155 outcome token to its condition and outcome
// index. The mapping must be complete: a fill on an unmapped token is
// excluded with a logged gap, never guessed. Outcome direction is not
// consistent across markets (the numerically lower token ID is not reliably
// outcome 0), so this table is the only legitimate source of outcome
// indices.
type TokenMapping struct {
	TokenID      string // canonical decimal form
	ConditionID  string // canonical lowercase hex, no 0x prefix
	OutcomeIndex int    // 0-based
}

