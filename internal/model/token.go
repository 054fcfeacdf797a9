package model

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Token captures ERC20 metadata for one side of the pair.
type Token struct {
	Address  common.Address `json:"address"`
	Decimals uint8          `json:"decimals"`
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
}

// DefaultTokens is the PEPE/USDC pair the ledger is deployed with.
var DefaultTokens = []Token{
	{Symbol: "PEPE", Name: "Pepe Token", Decimals: 18},
	{Symbol: "USDC", Name: "USD Coin", Decimals: 6},
}

// ToDecimal scales a raw integer amount down by the token decimals.
func (t Token) ToDecimal(raw *big.Int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(t.Decimals))
}

// FromDecimal parses a human amount ("12.5") into raw units, truncating extra precision.
func (t Token) FromDecimal(input string) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(input))
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", input, err)
	}
	if d.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative: %s", input)
	}
	return d.Shift(int32(t.Decimals)).BigInt(), nil
}

// Label is symbol when known, otherwise the hex address.
func (t Token) Label() string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return t.Address.Hex()
}

// TokenBySymbol finds a token by case-insensitive symbol.
func TokenBySymbol(tokens []Token, symbol string) (Token, bool) {
	for _, tok := range tokens {
		if strings.EqualFold(tok.Symbol, symbol) {
			return tok, true
		}
	}
	return Token{}, false
}
