package chain

import (
	"fmt"
	"math/big"
	"sort"

	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/notfartdev/zdoge-sub003/internal/pool"
	"github.com/notfartdev/zdoge-sub003/pkg/types"
)

// SortLogs orders raw logs by (BlockNumber, Index), the strict
// application order spec.md §4.4 and §5 require within one pool.
func SortLogs(logs []gethtypes.Log) {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
}

// DecodeShield unpacks a Shield log (spec.md §6) into a pool.ShieldEvent.
func (c *Client) DecodeShield(log gethtypes.Log) (pool.ShieldEvent, error) {
	if len(log.Topics) != 4 {
		return pool.ShieldEvent{}, fmt.Errorf("decode Shield: want 4 topics, got %d", len(log.Topics))
	}
	var data struct {
		Amount    *big.Int
		Timestamp *big.Int
	}
	if err := c.contractABI.UnpackIntoInterface(&data, "Shield", log.Data); err != nil {
		return pool.ShieldEvent{}, fmt.Errorf("decode Shield data: %w", err)
	}
	return pool.ShieldEvent{
		Commitment:  types.Hash(log.Topics[1]),
		LeafIndex:   log.Topics[2].Big().Uint64(),
		Token:       types.AddressFromBytes(log.Topics[3].Bytes()),
		Amount:      data.Amount,
		Timestamp:   data.Timestamp.Uint64(),
		BlockNumber: log.BlockNumber,
		TxHash:      types.Hash(log.TxHash),
	}, nil
}

// DecodeTransfer unpacks a Transfer log into a pool.TransferEvent.
func (c *Client) DecodeTransfer(log gethtypes.Log) (pool.TransferEvent, error) {
	if len(log.Topics) != 4 {
		return pool.TransferEvent{}, fmt.Errorf("decode Transfer: want 4 topics, got %d", len(log.Topics))
	}
	var data struct {
		OutputCommitment1 [32]byte
		OutputCommitment2 [32]byte
		EncryptedMemo1    []byte
		EncryptedMemo2    []byte
		Timestamp         *big.Int
	}
	if err := c.contractABI.UnpackIntoInterface(&data, "Transfer", log.Data); err != nil {
		return pool.TransferEvent{}, fmt.Errorf("decode Transfer data: %w", err)
	}
	return pool.TransferEvent{
		NullifierHash:     types.Hash(log.Topics[1]),
		OutputCommitment1: types.Hash(data.OutputCommitment1),
		OutputCommitment2: types.Hash(data.OutputCommitment2),
		LeafIndex1:        log.Topics[2].Big().Uint64(),
		LeafIndex2:        log.Topics[3].Big().Uint64(),
		EncryptedMemo1:    data.EncryptedMemo1,
		EncryptedMemo2:    data.EncryptedMemo2,
		Timestamp:         data.Timestamp.Uint64(),
		BlockNumber:       log.BlockNumber,
		TxHash:            types.Hash(log.TxHash),
	}, nil
}

// DecodeUnshield unpacks an Unshield log into a pool.UnshieldEvent.
func (c *Client) DecodeUnshield(log gethtypes.Log) (pool.UnshieldEvent, error) {
	if len(log.Topics) != 4 {
		return pool.UnshieldEvent{}, fmt.Errorf("decode Unshield: want 4 topics, got %d", len(log.Topics))
	}
	var data struct {
		Amount    *big.Int
		Relayer   [20]byte
		Fee       *big.Int
		Timestamp *big.Int
	}
	if err := c.contractABI.UnpackIntoInterface(&data, "Unshield", log.Data); err != nil {
		return pool.UnshieldEvent{}, fmt.Errorf("decode Unshield data: %w", err)
	}
	return pool.UnshieldEvent{
		NullifierHash: types.Hash(log.Topics[1]),
		Recipient:     types.AddressFromBytes(log.Topics[2].Bytes()),
		Token:         types.AddressFromBytes(log.Topics[3].Bytes()),
		Amount:        data.Amount,
		Fee:           data.Fee,
		Timestamp:     data.Timestamp.Uint64(),
		BlockNumber:   log.BlockNumber,
		TxHash:        types.Hash(log.TxHash),
	}, nil
}

// DecodeSwap unpacks a Swap log into a pool.SwapEvent.
func (c *Client) DecodeSwap(log gethtypes.Log) (pool.SwapEvent, error) {
	if len(log.Topics) != 4 {
		return pool.SwapEvent{}, fmt.Errorf("decode Swap: want 4 topics, got %d", len(log.Topics))
	}
	var data struct {
		OutputCommitment [32]byte
		AmountIn         *big.Int
		AmountOut        *big.Int
		EncryptedMemo    []byte
		Timestamp        *big.Int
	}
	if err := c.contractABI.UnpackIntoInterface(&data, "Swap", log.Data); err != nil {
		return pool.SwapEvent{}, fmt.Errorf("decode Swap data: %w", err)
	}
	return pool.SwapEvent{
		InputNullifier:   types.Hash(log.Topics[1]),
		OutputCommitment: types.Hash(data.OutputCommitment),
		LeafIndex:        0, // Swap carries no indexed leafIndex; resolved via LeafInserted scan
		TokenIn:          types.AddressFromBytes(log.Topics[2].Bytes()),
		TokenOut:         types.AddressFromBytes(log.Topics[3].Bytes()),
		AmountIn:         data.AmountIn,
		AmountOut:        data.AmountOut,
		EncryptedMemo:    data.EncryptedMemo,
		Timestamp:        data.Timestamp.Uint64(),
		BlockNumber:      log.BlockNumber,
		TxHash:           types.Hash(log.TxHash),
	}, nil
}

// LeafInsertedEvent mirrors the chain's LeafInserted log, used both to
// resolve a Swap's output leafIndex and to extract newly inserted leaf
// indices from a relay transaction's receipt (spec.md §4.5 receipt
// parsing).
type LeafInsertedEvent struct {
	Leaf      types.Hash
	LeafIndex uint64
	NewRoot   types.Hash
}

// DecodeLeafInserted unpacks a LeafInserted log.
func (c *Client) DecodeLeafInserted(log gethtypes.Log) (LeafInsertedEvent, error) {
	if len(log.Topics) != 3 {
		return LeafInsertedEvent{}, fmt.Errorf("decode LeafInserted: want 3 topics, got %d", len(log.Topics))
	}
	var data struct {
		NewRoot [32]byte
	}
	if err := c.contractABI.UnpackIntoInterface(&data, "LeafInserted", log.Data); err != nil {
		return LeafInsertedEvent{}, fmt.Errorf("decode LeafInserted data: %w", err)
	}
	return LeafInsertedEvent{
		Leaf:      types.Hash(log.Topics[1]),
		LeafIndex: log.Topics[2].Big().Uint64(),
		NewRoot:   types.Hash(data.NewRoot),
	}, nil
}

// LeafIndicesFromReceipt scans a transaction receipt's logs for
// LeafInserted events and returns their leafIndex values in log order
// (spec.md §4.5 receipt parsing).
func (c *Client) LeafIndicesFromReceipt(receipt *gethtypes.Receipt) ([]uint64, error) {
	var indices []uint64
	for _, log := range receipt.Logs {
		if c.EventName(*log) != "LeafInserted" {
			continue
		}
		ev, err := c.DecodeLeafInserted(*log)
		if err != nil {
			return nil, err
		}
		indices = append(indices, ev.LeafIndex)
	}
	return indices, nil
}
