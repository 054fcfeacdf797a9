package settlement

import (
	"fmt"
	"math/big"

	"gaslessSwap/internal/model"
)

// StageError reports the stage a settlement failed at together with its kind.
type StageError struct {
	Stage model.Stage
	Kind  model.ErrorKind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("swap failed at %s (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// InsufficientLiquidityError reports a quote that exceeds the opposing reserve.
type InsufficientLiquidityError struct {
	Token     model.Token
	Required  *big.Int
	Available *big.Int
}

func (e *InsufficientLiquidityError) Error() string {
	return fmt.Sprintf("insufficient liquidity: required=%s available=%s %s", e.Required, e.Available, e.Token.Label())
}

func (e *InsufficientLiquidityError) Kind() model.ErrorKind { return model.ErrorKindInsufficientLiquidity }
