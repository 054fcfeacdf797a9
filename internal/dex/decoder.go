package dex

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"gaslessSwap/internal/model"
)

// LogMeta carries block context the log itself does not.
type LogMeta struct {
	ChainID    uint64
	Timestamp  uint64
	IngestedAt time.Time
}

// LedgerDecoder decodes exchange ledger logs.
type LedgerDecoder struct {
	ledgerABI   abi.ABI
	topicToName map[common.Hash]string
}

// NewLedgerDecoder builds a decoder for LiquidityAdded, TokenSwapped and EmergencyWithdrawn.
func NewLedgerDecoder() (*LedgerDecoder, error) {
	parsed, err := LedgerABI()
	if err != nil {
		return nil, err
	}
	topicToName := make(map[common.Hash]string, 3)
	for _, name := range []string{model.EventLiquidityAdded, model.EventTokenSwapped, model.EventEmergencyWithdrawn} {
		event, ok := parsed.Events[name]
		if !ok {
			return nil, fmt.Errorf("ledger abi missing event %s", name)
		}
		topicToName[event.ID] = name
	}
	return &LedgerDecoder{ledgerABI: parsed, topicToName: topicToName}, nil
}

// Topics returns the topic0 hashes the decoder understands.
func (d *LedgerDecoder) Topics() []common.Hash {
	out := make([]common.Hash, 0, len(d.topicToName))
	for _, name := range []string{model.EventLiquidityAdded, model.EventTokenSwapped, model.EventEmergencyWithdrawn} {
		out = append(out, d.ledgerABI.Events[name].ID)
	}
	return out
}

// CanDecode checks if the topic0 is supported.
func (d *LedgerDecoder) CanDecode(topic0 common.Hash) bool {
	_, ok := d.topicToName[topic0]
	return ok
}

// Decode converts a raw log into a LedgerEvent.
func (d *LedgerDecoder) Decode(log types.Log, meta LogMeta) (*model.LedgerEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[log.Topics[0]]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0].Hex())
	}

	out := &model.LedgerEvent{
		ChainID:     meta.ChainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
		Ledger:      log.Address.Hex(),
		EventName:   name,
		Timestamp:   meta.Timestamp,
	}
	if !meta.IngestedAt.IsZero() {
		out.IngestedAt = meta.IngestedAt.UTC().Format(time.RFC3339Nano)
	}

	var err error
	switch name {
	case model.EventLiquidityAdded:
		err = d.decodeLiquidityAdded(log, out)
	case model.EventTokenSwapped:
		err = d.decodeTokenSwapped(log, out)
	case model.EventEmergencyWithdrawn:
		err = d.decodeEmergencyWithdrawn(log, out)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return out, nil
}

func (d *LedgerDecoder) decodeLiquidityAdded(log types.Log, out *model.LedgerEvent) error {
	event := d.ledgerABI.Events[model.EventLiquidityAdded]
	if _, err := parseIndexedTopics(event, log.Topics); err != nil {
		return err
	}
	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return err
	}
	if len(values) != 2 {
		return fmt.Errorf("unexpected values: %d", len(values))
	}
	return fillAmounts(out, values[0], values[1])
}

func (d *LedgerDecoder) decodeTokenSwapped(log types.Log, out *model.LedgerEvent) error {
	event := d.ledgerABI.Events[model.EventTokenSwapped]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return err
	}
	var indexed struct {
		Caller common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return err
	}
	if len(values) != 4 {
		return fmt.Errorf("unexpected values: %d", len(values))
	}
	tokenIn, err := asAddress(values[0])
	if err != nil {
		return err
	}
	tokenOut, err := asAddress(values[1])
	if err != nil {
		return err
	}
	amountIn, err := asBigInt(values[2])
	if err != nil {
		return err
	}
	amountOut, err := asBigInt(values[3])
	if err != nil {
		return err
	}

	out.Caller = indexed.Caller.Hex()
	out.TokenIn = tokenIn.Hex()
	out.TokenOut = tokenOut.Hex()
	out.AmountIn = amountIn.String()
	out.AmountOut = amountOut.String()
	return nil
}

func (d *LedgerDecoder) decodeEmergencyWithdrawn(log types.Log, out *model.LedgerEvent) error {
	event := d.ledgerABI.Events[model.EventEmergencyWithdrawn]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return err
	}
	var indexed struct {
		Owner common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return err
	}
	if len(values) != 2 {
		return fmt.Errorf("unexpected values: %d", len(values))
	}
	out.Caller = indexed.Owner.Hex()
	return fillAmounts(out, values[0], values[1])
}

func fillAmounts(out *model.LedgerEvent, a, b interface{}) error {
	amountA, err := asBigInt(a)
	if err != nil {
		return err
	}
	amountB, err := asBigInt(b)
	if err != nil {
		return err
	}
	out.AmountA = amountA.String()
	out.AmountB = amountB.String()
	return nil
}

// NormalizeEventName maps user input like "swap" to the canonical event name.
func NormalizeEventName(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "liquidityadded", "liquidity", "add":
		return model.EventLiquidityAdded
	case "tokenswapped", "swap":
		return model.EventTokenSwapped
	case "emergencywithdrawn", "withdraw":
		return model.EventEmergencyWithdrawn
	default:
		return ""
	}
}

// TopicFor returns topic0 of a canonical event name.
func TopicFor(name string) (common.Hash, error) {
	parsed, err := LedgerABI()
	if err != nil {
		return common.Hash{}, err
	}
	event, ok := parsed.Events[name]
	if !ok {
		return common.Hash{}, fmt.Errorf("unknown event %q", name)
	}
	return event.ID, nil
}

func parseIndexedTopics(event abi.Event, topics []common.Hash) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	return topics[1:], nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, data []byte) ([]interface{}, error) {
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}
