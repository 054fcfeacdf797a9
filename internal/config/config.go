package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "SWAPPER"

// SwapConfig holds the settings shared by the commands that talk to a deployed ledger.
type SwapConfig struct {
	RPCURL              string
	RelayURL            string
	RelayMethod         string
	Ledger              string
	TokenA              string
	TokenB              string
	PrivateKey          string
	AccountFactory      string
	AccountInitCodeHash string
	AccountIndex        uint64
	ReceiptTimeout      time.Duration
	PollInterval        time.Duration
	RefreshAttempts     int
	RefreshDelay        time.Duration
	Journal             string
	PGDSN               string
	MetricsAddr         string
	LogLevel            string
}

// LoadSwap merges config file, environment variables, and flags into SwapConfig.
func LoadSwap(cfgFile string, flags *pflag.FlagSet) (SwapConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("relay-method", "relay_sendTransaction")
		v.SetDefault("receipt-timeout", 60*time.Second)
		v.SetDefault("poll-interval", 2*time.Second)
		v.SetDefault("refresh-attempts", 3)
		v.SetDefault("refresh-delay", 2*time.Second)
		v.SetDefault("journal", "./data/swaps.jsonl")
		v.SetDefault("account-index", uint64(0))
		v.SetDefault("log-level", "info")
	})
	if err != nil {
		return SwapConfig{}, err
	}

	cfg := SwapConfig{
		RPCURL:              v.GetString("rpc"),
		RelayURL:            v.GetString("relay-rpc"),
		RelayMethod:         v.GetString("relay-method"),
		Ledger:              v.GetString("ledger"),
		TokenA:              v.GetString("token-a"),
		TokenB:              v.GetString("token-b"),
		PrivateKey:          v.GetString("private-key"),
		AccountFactory:      v.GetString("account-factory"),
		AccountInitCodeHash: v.GetString("account-init-code-hash"),
		AccountIndex:        v.GetUint64("account-index"),
		ReceiptTimeout:      v.GetDuration("receipt-timeout"),
		PollInterval:        v.GetDuration("poll-interval"),
		RefreshAttempts:     v.GetInt("refresh-attempts"),
		RefreshDelay:        v.GetDuration("refresh-delay"),
		Journal:             v.GetString("journal"),
		PGDSN:               v.GetString("pg-dsn"),
		MetricsAddr:         v.GetString("metrics-addr"),
		LogLevel:            v.GetString("log-level"),
	}
	if cfg.RelayURL == "" {
		cfg.RelayURL = cfg.RPCURL
	}
	return cfg, nil
}

// Validate reports the first missing setting a ledger session needs.
func (c SwapConfig) Validate() error {
	switch {
	case c.RPCURL == "":
		return fmt.Errorf("rpc url is required")
	case c.Ledger == "":
		return fmt.Errorf("ledger address is required")
	}
	return nil
}

func newViper(cfgFile string, flags *pflag.FlagSet, defaults func(*viper.Viper)) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if defaults != nil {
		defaults(v)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
