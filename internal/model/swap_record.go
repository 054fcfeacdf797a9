package model

// SwapRecord is the journal row written once a PendingSwap reaches a terminal stage.
type SwapRecord struct {
	ID           string `json:"id"`
	Account      string `json:"account"`
	FromToken    string `json:"from_token"`
	ToToken      string `json:"to_token"`
	AmountIn     string `json:"amount_in"`
	QuotedOut    string `json:"quoted_out"`
	Stage        string `json:"stage"`
	FailedStage  string `json:"failed_stage,omitempty"`
	ApprovalTx   string `json:"approval_tx,omitempty"`
	SwapTx       string `json:"swap_tx,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	StartedAt    string `json:"started_at"`
	FinishedAt   string `json:"finished_at"`
	DurationMs   int64  `json:"duration_ms"`
}
