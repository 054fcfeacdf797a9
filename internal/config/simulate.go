package config

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// SimulateConfig describes an in-process ledger deployment and the swaps to run against it.
type SimulateConfig struct {
	RateNumerator   string
	RateDenominator string
	LiquidityA      string
	LiquidityB      string
	FundA           string
	FundB           string
	Swaps           []string
	ConfirmDelay    time.Duration
	ReceiptTimeout  time.Duration
	Journal         string
	LogLevel        string
}

// LoadSimulate merges config file, environment variables, and flags into SimulateConfig.
// Amounts are human units of the default PEPE/USDC pair; the rate applies to raw units,
// so the default 5/1e18 prices 1 PEPE at 0.000005 USDC.
func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("rate-numerator", "5")
		v.SetDefault("rate-denominator", "1000000000000000000")
		v.SetDefault("liquidity-a", "5000000")
		v.SetDefault("liquidity-b", "25")
		v.SetDefault("fund-a", "10000000")
		v.SetDefault("fund-b", "0")
		v.SetDefault("confirm-delay", 200*time.Millisecond)
		v.SetDefault("receipt-timeout", 10*time.Second)
		v.SetDefault("log-level", "info")
	})
	if err != nil {
		return SimulateConfig{}, err
	}

	return SimulateConfig{
		RateNumerator:   v.GetString("rate-numerator"),
		RateDenominator: v.GetString("rate-denominator"),
		LiquidityA:      v.GetString("liquidity-a"),
		LiquidityB:      v.GetString("liquidity-b"),
		FundA:           v.GetString("fund-a"),
		FundB:           v.GetString("fund-b"),
		Swaps:           getStringSlice(v, "swap"),
		ConfirmDelay:    v.GetDuration("confirm-delay"),
		ReceiptTimeout:  v.GetDuration("receipt-timeout"),
		Journal:         v.GetString("journal"),
		LogLevel:        v.GetString("log-level"),
	}, nil
}
