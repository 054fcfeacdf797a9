package dex

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"gaslessSwap/internal/model"
)

func TestLedgerDecoderTokenSwapped(t *testing.T) {
	ledgerABI, err := LedgerABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	decoder, err := NewLedgerDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	ledger := common.HexToAddress("0x1111111111111111111111111111111111111111")
	caller := common.HexToAddress("0x2222222222222222222222222222222222222222")
	tokenIn := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	tokenOut := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	event := ledgerABI.Events[model.EventTokenSwapped]
	data, err := event.Inputs.NonIndexed().Pack(tokenIn, tokenOut, big.NewInt(1000000), big.NewInt(5))
	if err != nil {
		t.Fatalf("pack swap: %v", err)
	}

	log := buildLog(ledger, event.ID, data, []common.Hash{topicFromAddress(caller)})
	if !decoder.CanDecode(log.Topics[0]) {
		t.Fatalf("expected topic to be decodable")
	}

	ingested := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	decoded, err := decoder.Decode(log, LogMeta{ChainID: 56, Timestamp: 1700000000, IngestedAt: ingested})
	if err != nil {
		t.Fatalf("decode swap: %v", err)
	}
	if decoded.EventName != model.EventTokenSwapped {
		t.Fatalf("event name mismatch: %s", decoded.EventName)
	}
	if decoded.Caller != caller.Hex() || decoded.TokenIn != tokenIn.Hex() || decoded.TokenOut != tokenOut.Hex() {
		t.Fatalf("address mismatch: %+v", decoded)
	}
	if decoded.AmountIn != "1000000" || decoded.AmountOut != "5" {
		t.Fatalf("amounts mismatch: %+v", decoded)
	}
	if decoded.ChainID != 56 || decoded.BlockNumber != 12345 || decoded.LogIndex != 1 {
		t.Fatalf("log meta mismatch: %+v", decoded)
	}
	if decoded.Ledger != ledger.Hex() {
		t.Fatalf("ledger mismatch: %s", decoded.Ledger)
	}
	if decoded.IngestedAt != "2024-01-02T03:04:05Z" {
		t.Fatalf("ingested_at mismatch: %s", decoded.IngestedAt)
	}
}

func TestLedgerDecoderLiquidityAndWithdraw(t *testing.T) {
	ledgerABI, err := LedgerABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	decoder, err := NewLedgerDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	ledger := common.HexToAddress("0x9999999999999999999999999999999999999999")
	owner := common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")

	added := ledgerABI.Events[model.EventLiquidityAdded]
	addData, err := added.Inputs.NonIndexed().Pack(big.NewInt(5000000), big.NewInt(25))
	if err != nil {
		t.Fatalf("pack liquidity: %v", err)
	}
	addEvent, err := decoder.Decode(buildLog(ledger, added.ID, addData, nil), LogMeta{})
	if err != nil {
		t.Fatalf("decode liquidity: %v", err)
	}
	if addEvent.AmountA != "5000000" || addEvent.AmountB != "25" {
		t.Fatalf("liquidity amounts mismatch: %+v", addEvent)
	}
	if addEvent.IngestedAt != "" {
		t.Fatalf("expected empty ingested_at, got %s", addEvent.IngestedAt)
	}

	withdrawn := ledgerABI.Events[model.EventEmergencyWithdrawn]
	withdrawData, err := withdrawn.Inputs.NonIndexed().Pack(big.NewInt(300), big.NewInt(7))
	if err != nil {
		t.Fatalf("pack withdraw: %v", err)
	}
	withdrawEvent, err := decoder.Decode(buildLog(ledger, withdrawn.ID, withdrawData, []common.Hash{topicFromAddress(owner)}), LogMeta{})
	if err != nil {
		t.Fatalf("decode withdraw: %v", err)
	}
	if withdrawEvent.Caller != owner.Hex() {
		t.Fatalf("owner mismatch: %s", withdrawEvent.Caller)
	}
	if withdrawEvent.AmountA != "300" || withdrawEvent.AmountB != "7" {
		t.Fatalf("withdraw amounts mismatch: %+v", withdrawEvent)
	}
}

func TestLedgerDecoderRejectsMalformed(t *testing.T) {
	ledgerABI, err := LedgerABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	decoder, err := NewLedgerDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	ledger := common.HexToAddress("0x1111111111111111111111111111111111111111")

	if _, err := decoder.Decode(types.Log{Address: ledger}, LogMeta{}); err == nil {
		t.Fatalf("expected missing topics error")
	}
	unknown := common.HexToHash("0x01")
	if decoder.CanDecode(unknown) {
		t.Fatalf("unexpected decodable topic")
	}
	if _, err := decoder.Decode(buildLog(ledger, unknown, nil, nil), LogMeta{}); err == nil {
		t.Fatalf("expected unsupported topic error")
	}

	swap := ledgerABI.Events[model.EventTokenSwapped]
	if _, err := decoder.Decode(buildLog(ledger, swap.ID, nil, nil), LogMeta{}); err == nil {
		t.Fatalf("expected topic count error")
	}
	caller := common.HexToAddress("0x2222222222222222222222222222222222222222")
	if _, err := decoder.Decode(buildLog(ledger, swap.ID, []byte{1, 2, 3}, []common.Hash{topicFromAddress(caller)}), LogMeta{}); err == nil {
		t.Fatalf("expected data unpack error")
	}
}

func TestNormalizeEventName(t *testing.T) {
	cases := map[string]string{
		"swap":           model.EventTokenSwapped,
		" TokenSwapped ": model.EventTokenSwapped,
		"liquidityadded": model.EventLiquidityAdded,
		"withdraw":       model.EventEmergencyWithdrawn,
		"collect":        "",
	}
	for input, want := range cases {
		if got := NormalizeEventName(input); got != want {
			t.Fatalf("NormalizeEventName(%q) = %q, want %q", input, got, want)
		}
	}
	topic, err := TopicFor(model.EventTokenSwapped)
	if err != nil {
		t.Fatalf("topic: %v", err)
	}
	decoder, _ := NewLedgerDecoder()
	if !decoder.CanDecode(topic) {
		t.Fatalf("topic mismatch")
	}
	if len(decoder.Topics()) != 3 {
		t.Fatalf("expected 3 topics")
	}
}

func buildLog(ledger common.Address, topic0 common.Hash, data []byte, indexed []common.Hash) types.Log {
	topics := make([]common.Hash, 0, len(indexed)+1)
	topics = append(topics, topic0)
	topics = append(topics, indexed...)
	return types.Log{
		Address:     ledger,
		Topics:      topics,
		Data:        data,
		BlockNumber: 12345,
		BlockHash:   common.HexToHash("0xabc"),
		TxHash:      common.HexToHash("0xdef"),
		Index:       1,
	}
}

func topicFromAddress(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}
