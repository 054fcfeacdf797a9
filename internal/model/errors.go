package model

import "errors"

// ErrorKind classifies a failure so callers can branch without parsing messages.
type ErrorKind string

const (
	ErrorKindNone                          ErrorKind = ""
	ErrorKindConfigurationMissing          ErrorKind = "configuration_missing"
	ErrorKindSignerUnavailable             ErrorKind = "signer_unavailable"
	ErrorKindProviderRejected              ErrorKind = "provider_rejected"
	ErrorKindAbstractionInvariantViolation ErrorKind = "abstraction_invariant_violation"
	ErrorKindAccountNotReady               ErrorKind = "account_not_ready"
	ErrorKindInvalidAmount                 ErrorKind = "invalid_amount"
	ErrorKindUnauthorized                  ErrorKind = "unauthorized"
	ErrorKindInsufficientLiquidity         ErrorKind = "insufficient_liquidity"
	ErrorKindApprovalNotReflected          ErrorKind = "approval_not_reflected"
	ErrorKindReceiptTimeout                ErrorKind = "receipt_timeout"
	ErrorKindOperationInProgress           ErrorKind = "operation_in_progress"
	ErrorKindBalanceFetchFailure           ErrorKind = "balance_fetch_failure"
	ErrorKindTransactionReverted           ErrorKind = "transaction_reverted"
	ErrorKindTransferFailed                ErrorKind = "transfer_failed"
	ErrorKindUnsupportedPair               ErrorKind = "unsupported_pair"
	ErrorKindCancelled                     ErrorKind = "cancelled"
	ErrorKindUnknown                       ErrorKind = "unknown"
)

// Recoverable reports whether the caller may retry the failed operation as is.
func (k ErrorKind) Recoverable() bool {
	switch k {
	case ErrorKindReceiptTimeout, ErrorKindOperationInProgress, ErrorKindBalanceFetchFailure:
		return true
	default:
		return false
	}
}

// KindedError is implemented by errors that carry an ErrorKind.
type KindedError interface {
	error
	Kind() ErrorKind
}

// KindError is a plain error tagged with a kind.
type KindError struct {
	K   ErrorKind
	Err error
}

// NewKindError wraps err with kind.
func NewKindError(kind ErrorKind, err error) *KindError {
	return &KindError{K: kind, Err: err}
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return string(e.K)
	}
	return string(e.K) + ": " + e.Err.Error()
}

func (e *KindError) Kind() ErrorKind { return e.K }

func (e *KindError) Unwrap() error { return e.Err }

// KindOf returns the first ErrorKind found in the error chain.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	var kinded KindedError
	if errors.As(err, &kinded) {
		return kinded.Kind()
	}
	return ErrorKindUnknown
}
