package indexer

import (
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	"gaslessSwap/internal/dex"
	"gaslessSwap/internal/model"
)

func buildDecodeError(chainID uint64, log types.Log, err error) model.DecodeError {
	out := model.DecodeError{
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Error:       err.Error(),
	}
	if len(log.Topics) > 0 {
		out.Topic0 = log.Topics[0].Hex()
	}
	return out
}

func buildLogMeta(chainID, timestamp uint64, ingestedAt time.Time) dex.LogMeta {
	return dex.LogMeta{ChainID: chainID, Timestamp: timestamp, IngestedAt: ingestedAt.UTC()}
}
