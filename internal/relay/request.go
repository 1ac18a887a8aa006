// Package relay implements the trust boundary between an opaque
// client-generated proof bundle and an on-chain submission (spec.md
// §4.5): policy gates, simulation, dispatch to the pool contract,
// custom-error decoding, deduplication, rate limiting, and nonce
// management. No teacher analog exists for an external relay; its
// fail-fast gate pipeline follows the ordered-validation idiom in the
// teacher's internal/zkp/transaction.go ShieldedPool.ProcessTransaction,
// and its fee-sanity bound follows internal/economics/fees.go (see
// fee.go). Grounded on go-ethereum's accounts/abi/bind for simulation,
// submission, and custom-error decoding.
package relay

import (
	"math/big"

	"github.com/notfartdev/zdoge-sub003/pkg/types"
)

// Operation identifies one of the six dispatchable request shapes
// (spec.md §4.5 dispatch table).
type Operation string

const (
	OpUnshield       Operation = "unshield"
	OpTransfer       Operation = "transfer"
	OpTransferMulti  Operation = "transferMulti"
	OpSwap           Operation = "swap"
	OpBatchTransfer  Operation = "batchTransfer"
	OpBatchUnshield  Operation = "batchUnshield"
)

// MaxMultiInputs is the fixed-size nullifier/root vector length for
// transferMulti (spec.md §4.5).
const MaxMultiInputs = 5

// MaxBatchSize bounds batchTransfer/batchUnshield (spec.md §4.5 gate 2).
const MaxBatchSize = 100

// Request is the union of all fields any operation may carry (spec.md
// §4.5 "Request shape"). Unused fields for a given Operation are left
// zero; checkShape checks the combination required for op.
type Request struct {
	Operation    Operation
	PoolAddress  types.Address
	Proof        types.GrothProof
	PublicInputs []types.Hash

	Roots          []types.Hash // single-element for non-multi ops
	NullifierHashes []types.Hash
	NumInputs      uint8 // transferMulti: 2..5

	OutputCommitment1 types.Hash
	OutputCommitment2 types.Hash
	ChangeCommitments []types.Hash // parallel to NullifierHashes for unshield/batchUnshield

	Recipient types.Address
	Token     types.Address
	TokenIn   types.Address
	TokenOut  types.Address

	Amounts       []*big.Int // unshield/batchUnshield per-proof amounts
	SwapAmount    *big.Int
	OutputAmount  *big.Int
	MinAmountOut  *big.Int

	Relayer types.Address
	Fee     *big.Int
	TotalFee *big.Int

	Memos [][]byte // encrypted memo(s); length depends on op

	// Proofs is the batch-operation proof list (batchTransfer/batchUnshield).
	Proofs []types.GrothProof
}
