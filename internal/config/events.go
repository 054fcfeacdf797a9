package config

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EventsConfig holds configuration for the ledger event indexer.
type EventsConfig struct {
	RPCURL        string
	Ledgers       []string
	Events        []string
	FromBlock     uint64
	ToBlock       uint64
	BatchSize     uint64
	Confirmations uint64
	Out           string
	Checkpoint    string
	PGDSN         string
	MaxRetries    int
	RetryBackoff  time.Duration
	Follow        bool
	PollInterval  time.Duration
	MetricsAddr   string
	LogLevel      string
}

// LoadEvents merges config file, environment variables, and flags into EventsConfig.
func LoadEvents(cfgFile string, flags *pflag.FlagSet) (EventsConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("batch-size", uint64(2000))
		v.SetDefault("out", "./data/ledger_events.jsonl")
		v.SetDefault("checkpoint", "./data/events_checkpoint.json")
		v.SetDefault("max-retries", 5)
		v.SetDefault("retry-backoff", 500*time.Millisecond)
		v.SetDefault("poll-interval", 5*time.Second)
		v.SetDefault("log-level", "info")
	})
	if err != nil {
		return EventsConfig{}, err
	}

	ledgers := getStringSlice(v, "ledger")
	return EventsConfig{
		RPCURL:        v.GetString("rpc"),
		Ledgers:       ledgers,
		Events:        getStringSlice(v, "event"),
		FromBlock:     v.GetUint64("from"),
		ToBlock:       v.GetUint64("to"),
		BatchSize:     v.GetUint64("batch-size"),
		Confirmations: v.GetUint64("confirmations"),
		Out:           v.GetString("out"),
		Checkpoint:    v.GetString("checkpoint"),
		PGDSN:         v.GetString("pg-dsn"),
		MaxRetries:    v.GetInt("max-retries"),
		RetryBackoff:  v.GetDuration("retry-backoff"),
		Follow:        v.GetBool("follow"),
		PollInterval:  v.GetDuration("poll-interval"),
		MetricsAddr:   v.GetString("metrics-addr"),
		LogLevel:      v.GetString("log-level"),
	}, nil
}
