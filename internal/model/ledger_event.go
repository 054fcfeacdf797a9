package model

// Ledger event names.
const (
	EventLiquidityAdded     = "LiquidityAdded"
	EventTokenSwapped       = "TokenSwapped"
	EventEmergencyWithdrawn = "EmergencyWithdrawn"
)

// LedgerEvent is a decoded ledger log. Amounts are decimal strings of raw units.
type LedgerEvent struct {
	ChainID     uint64 `json:"chain_id"`
	BlockNumber uint64 `json:"block_number"`
	BlockHash   string `json:"block_hash"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
	Ledger      string `json:"ledger"`
	EventName   string `json:"event_name"`
	Caller      string `json:"caller,omitempty"`
	TokenIn     string `json:"token_in,omitempty"`
	TokenOut    string `json:"token_out,omitempty"`
	AmountIn    string `json:"amount_in,omitempty"`
	AmountOut   string `json:"amount_out,omitempty"`
	AmountA     string `json:"amount_a,omitempty"`
	AmountB     string `json:"amount_b,omitempty"`
	Timestamp   uint64 `json:"timestamp"`
	IngestedAt  string `json:"ingested_at"`
}

// DecodeError records a log the indexer could not decode.
type DecodeError struct {
	ChainID     uint64 `json:"chain_id"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
	Address     string `json:"address"`
	Topic0      string `json:"topic0"`
	Error       string `json:"error"`
}
