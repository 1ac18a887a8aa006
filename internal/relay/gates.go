package relay

import (
	"context"
	"fmt"
	"math/big"

	"github.com/notfartdev/zdoge-sub003/pkg/types"
)

// PoolReader is the read surface the gate pipeline needs from a pool's
// state (spec.md §4.5 gate 5): the nullifier-unspent check against the
// indexer's in-memory view, not the chain. Gate 4's root-known check
// goes to the chain through ChainRootChecker instead.
type PoolReader interface {
	IsNullifierSpent(ctx context.Context, nullifier types.Hash) (bool, error)
}

// ChainRootChecker performs the on-chain is_known_root view call
// (spec.md §4.5 gate 4).
type ChainRootChecker interface {
	IsKnownRoot(ctx context.Context, poolAddress types.Address, root types.Hash) (bool, error)
}

// TokenChecker performs the on-chain supportedTokens view call (spec.md
// §4.5 gate 7).
type TokenChecker interface {
	SupportedTokens(ctx context.Context, poolAddress types.Address, token types.Address) (bool, error)
}

// Executor fields used by the availability gate.
type availability interface {
	Available(ctx context.Context) error
}

// RunGates executes the ordered policy-gate pipeline (spec.md §4.5),
// failing fast on the first violation with no state change.
func RunGates(ctx context.Context, req Request, exec availability, poolState PoolReader, chain ChainRootChecker, tokenChecker TokenChecker, feePolicy FeePolicy) error {
	if err := exec.Available(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRelayerUnavailable, err)
	}

	if err := checkShape(req); err != nil {
		return err
	}

	if err := checkPublicInputsConsistency(req); err != nil {
		return err
	}

	for _, root := range req.Roots {
		known, err := chain.IsKnownRoot(ctx, req.PoolAddress, root)
		if err != nil {
			return fmt.Errorf("check known root: %w", err)
		}
		if !known {
			return ErrUnknownRoot
		}
	}

	for _, n := range req.NullifierHashes {
		spent, err := poolState.IsNullifierSpent(ctx, n)
		if err != nil {
			return fmt.Errorf("check nullifier spent: %w", err)
		}
		if spent {
			return ErrNullifierSpent
		}
	}

	if err := checkFee(req, feePolicy); err != nil {
		return err
	}

	if err := checkTokenSupport(ctx, req, tokenChecker); err != nil {
		return err
	}

	return nil
}

// checkShape is gate 2 (spec.md §4.5): proof shape, memo sizes, batch
// size/array-length agreement, amount/fee sign.
func checkShape(req Request) error {
	if len(req.Proofs) == 0 {
		if req.Proof == (types.GrothProof{}) {
			return ErrInvalidProofShape
		}
	}
	for _, m := range req.Memos {
		if len(m) > types.MemoMaxBytes {
			return ErrMemoTooLarge
		}
	}

	isBatch := req.Operation == OpBatchTransfer || req.Operation == OpBatchUnshield
	if isBatch {
		n := len(req.Proofs)
		if n < 1 || n > MaxBatchSize {
			return ErrBatchSizeInvalid
		}
		if len(req.Roots) != n || len(req.NullifierHashes) != n {
			return ErrBatchSizeInvalid
		}
		if req.Operation == OpBatchUnshield {
			if len(req.Amounts) != n || len(req.ChangeCommitments) != n {
				return ErrBatchSizeInvalid
			}
			for _, a := range req.Amounts {
				if a == nil || a.Sign() <= 0 {
					return ErrAmountNotPositive
				}
			}
		}
	}

	if req.Operation == OpTransferMulti {
		if req.NumInputs < 2 || req.NumInputs > MaxMultiInputs {
			return ErrBatchSizeInvalid
		}
		if len(req.Roots) != MaxMultiInputs || len(req.NullifierHashes) != MaxMultiInputs {
			return ErrBatchSizeInvalid
		}
	}

	if amt := primaryAmount(req); amt != nil && amt.Sign() <= 0 {
		return ErrAmountNotPositive
	}
	if fee := primaryFee(req); fee != nil && fee.Sign() < 0 {
		return ErrFeeNegative
	}
	return nil
}

func primaryAmount(req Request) *big.Int {
	switch req.Operation {
	case OpSwap:
		return req.SwapAmount
	case OpUnshield:
		if len(req.Amounts) > 0 {
			return req.Amounts[0]
		}
		return nil
	default:
		return nil
	}
}

func primaryFee(req Request) *big.Int {
	if req.Operation == OpBatchUnshield {
		return req.TotalFee
	}
	return req.Fee
}

// checkPublicInputsConsistency is gate 3 (spec.md §4.5): when
// publicInputs is supplied, every on-the-wire field must equal the
// corresponding decoded element, positionally, in the exact order the
// dispatch target function consumes them (spec.md §8 vector test 5:
// "POST /relay/transfer where publicInputs[4] (relayer) differs from
// the request's relayer returns INVALID_PROOF with no on-chain call
// made"). The proof itself and raw memo byte blobs are not field
// elements and are excluded from the wire.
func checkPublicInputsConsistency(req Request) error {
	if len(req.PublicInputs) == 0 {
		return nil // no vector supplied: nothing to cross-check
	}

	wire, err := publicInputWire(req)
	if err != nil {
		return err
	}

	if len(req.PublicInputs) < len(wire) {
		return ErrPublicInputMismatch
	}
	for i, w := range wire {
		if req.PublicInputs[i] != w {
			return ErrPublicInputMismatch
		}
	}
	return nil
}

// publicInputWire reconstructs the positional public-input vector the
// pool contract consumes for req.Operation, mirroring dispatch's
// argument order (internal/relay/dispatch.go) field for field.
func publicInputWire(req Request) ([]types.Hash, error) {
	switch req.Operation {
	case OpUnshield:
		if len(req.Amounts) == 0 {
			return nil, ErrInvalidProofShape
		}
		wire := []types.Hash{root(req), nullifier(req), addrHash(req.Recipient)}
		if !req.Token.IsNative() {
			wire = append(wire, addrHash(req.Token))
		}
		wire = append(wire,
			amountHash(req.Amounts[0]),
			changeCommitment(req),
			addrHash(req.Relayer),
			amountHash(req.Fee),
		)
		return wire, nil
	case OpTransfer:
		return []types.Hash{
			root(req), nullifier(req),
			req.OutputCommitment1, req.OutputCommitment2,
			addrHash(req.Relayer), amountHash(req.Fee),
		}, nil
	case OpTransferMulti:
		wire := append([]types.Hash{}, req.Roots...)
		wire = append(wire, req.NullifierHashes...)
		wire = append(wire,
			req.OutputCommitment1, req.OutputCommitment2,
			addrHash(req.Relayer), amountHash(req.Fee),
		)
		return wire, nil
	case OpSwap:
		return []types.Hash{
			root(req), nullifier(req),
			req.OutputCommitment1, req.OutputCommitment2,
			addrHash(req.TokenIn), addrHash(req.TokenOut),
			amountHash(req.SwapAmount), amountHash(req.OutputAmount), amountHash(req.MinAmountOut),
		}, nil
	case OpBatchTransfer:
		wire := append([]types.Hash{}, req.Roots...)
		wire = append(wire, req.NullifierHashes...)
		wire = append(wire,
			req.OutputCommitment1, req.OutputCommitment2,
			addrHash(req.Token), addrHash(req.Relayer), amountHash(req.Fee),
		)
		return wire, nil
	case OpBatchUnshield:
		wire := append([]types.Hash{}, req.Roots...)
		wire = append(wire, req.NullifierHashes...)
		wire = append(wire, addrHash(req.Recipient), addrHash(req.Token))
		for _, a := range req.Amounts {
			wire = append(wire, amountHash(a))
		}
		wire = append(wire, req.ChangeCommitments...)
		wire = append(wire, addrHash(req.Relayer), amountHash(req.TotalFee))
		return wire, nil
	default:
		return nil, fmt.Errorf("relay: unknown operation %q", req.Operation)
	}
}

func addrHash(a types.Address) types.Hash {
	return types.HashFromBytes(a[:])
}

// amountHash renders a *big.Int as the 32-byte big-endian field element
// the circuit would see it as; nil amounts (unused for this op) map to
// the zero element.
func amountHash(a *big.Int) types.Hash {
	if a == nil {
		return types.EmptyHash
	}
	var h types.Hash
	a.FillBytes(h[:])
	return h
}

// checkFee is gate 6 (spec.md §4.5). Every dispatchable operation
// charges an explicit relayer fee (spec.md §9 open-question
// resolution: the relay never fabricates one on the client's behalf),
// but only operations with a single bounded amount (unshield, swap)
// get the percentage-of-amount sanity check.
func checkFee(req Request, policy FeePolicy) error {
	fee := primaryFee(req)
	if fee == nil {
		return ErrMissingFee
	}
	amt := primaryAmount(req)
	if amt == nil {
		return nil
	}
	return policy.Check(amt, fee)
}

// checkTokenSupport is gate 7 (spec.md §4.5): skipped for the native
// sentinel address, and tolerant of a chain that refuses state-override
// queries — in that case the contract call itself will revert and the
// error-decoding path (errors.go) translates it.
func checkTokenSupport(ctx context.Context, req Request, checker TokenChecker) error {
	token := req.Token
	if req.Operation == OpSwap {
		token = req.TokenIn
	}
	if token.IsNative() {
		return nil
	}
	supported, err := checker.SupportedTokens(ctx, req.PoolAddress, token)
	if err != nil {
		return nil // view call failed; let the contract revert and decode that instead
	}
	if !supported {
		return ErrUnsupportedToken
	}
	return nil
}
