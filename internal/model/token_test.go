package model

import (
	"errors"
	"fmt"
	"math/big"
	"testing"
)

func TestTokenFromDecimal(t *testing.T) {
	usdc := Token{Symbol: "USDC", Decimals: 6}

	got, err := usdc.FromDecimal("12.5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(big.NewInt(12_500_000)) != 0 {
		t.Fatalf("raw mismatch: %s", got)
	}

	got, err = usdc.FromDecimal("0.0000019")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("expected truncation to 1, got %s", got)
	}

	if _, err := usdc.FromDecimal("-1"); err == nil {
		t.Fatalf("expected error for negative amount")
	}
	if _, err := usdc.FromDecimal("abc"); err == nil {
		t.Fatalf("expected error for garbage input")
	}
}

func TestTokenToDecimal(t *testing.T) {
	pepe := Token{Symbol: "PEPE", Decimals: 18}
	raw, _ := new(big.Int).SetString("5000000000000000000000", 10)

	if got := pepe.ToDecimal(raw).String(); got != "5000" {
		t.Fatalf("decimal mismatch: %s", got)
	}
	if got := pepe.ToDecimal(nil).String(); got != "0" {
		t.Fatalf("nil should be zero, got %s", got)
	}
}

func TestTokenBySymbol(t *testing.T) {
	tok, ok := TokenBySymbol(DefaultTokens, "usdc")
	if !ok || tok.Decimals != 6 {
		t.Fatalf("lookup failed: %+v %v", tok, ok)
	}
	if _, ok := TokenBySymbol(DefaultTokens, "DOGE"); ok {
		t.Fatalf("unexpected match")
	}
}

func TestKindOf(t *testing.T) {
	base := NewKindError(ErrorKindReceiptTimeout, errors.New("no receipt"))
	wrapped := fmt.Errorf("await approval: %w", base)

	if got := KindOf(wrapped); got != ErrorKindReceiptTimeout {
		t.Fatalf("kind mismatch: %s", got)
	}
	if got := KindOf(errors.New("plain")); got != ErrorKindUnknown {
		t.Fatalf("expected unknown, got %s", got)
	}
	if got := KindOf(nil); got != ErrorKindNone {
		t.Fatalf("expected none, got %s", got)
	}
	if !ErrorKindReceiptTimeout.Recoverable() || ErrorKindAbstractionInvariantViolation.Recoverable() {
		t.Fatalf("recoverable classification wrong")
	}
}
