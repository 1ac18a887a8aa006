package relay

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/notfartdev/zdoge-sub003/pkg/types"
)

// dispatch maps req to the pool contract function it calls and the
// exact positional argument order that function expects (spec.md §4.5
// dispatch table).
func dispatch(req Request) (string, []interface{}, error) {
	switch req.Operation {
	case OpUnshield:
		return dispatchUnshield(req)
	case OpTransfer:
		return "transfer", []interface{}{
			proofArg(req.Proof),
			hash32(root(req)),
			hash32(nullifier(req)),
			hash32(req.OutputCommitment1),
			hash32(req.OutputCommitment2),
			addr(req.Relayer),
			req.Fee,
			memoAt(req.Memos, 0),
			memoAt(req.Memos, 1),
		}, nil
	case OpTransferMulti:
		return "transferMulti", []interface{}{
			proofArg(req.Proof),
			hashes5(req.Roots),
			hashes5(req.NullifierHashes),
			hash32(req.OutputCommitment1),
			hash32(req.OutputCommitment2),
			addr(req.Relayer),
			req.Fee,
			req.NumInputs,
			memoAt(req.Memos, 0),
			memoAt(req.Memos, 1),
		}, nil
	case OpSwap:
		return "swap", []interface{}{
			proofArg(req.Proof),
			hash32(root(req)),
			hash32(nullifier(req)),
			hash32(req.OutputCommitment1),
			hash32(req.OutputCommitment2),
			addr(req.TokenIn),
			addr(req.TokenOut),
			req.SwapAmount,
			req.OutputAmount,
			req.MinAmountOut,
			memoAt(req.Memos, 0),
		}, nil
	case OpBatchTransfer:
		return "batchTransfer", []interface{}{
			proofsArg(req.Proofs),
			hashesSlice(req.Roots),
			hashesSlice(req.NullifierHashes),
			hash32(req.OutputCommitment1),
			hash32(req.OutputCommitment2),
			addr(req.Token),
			addr(req.Relayer),
			req.Fee,
			memoAt(req.Memos, 0),
			memoAt(req.Memos, 1),
		}, nil
	case OpBatchUnshield:
		return "batchUnshield", []interface{}{
			proofsArg(req.Proofs),
			hashesSlice(req.Roots),
			hashesSlice(req.NullifierHashes),
			addr(req.Recipient),
			addr(req.Token),
			req.Amounts,
			hashesSlice(req.ChangeCommitments),
			addr(req.Relayer),
			req.TotalFee,
		}, nil
	default:
		return "", nil, fmt.Errorf("relay: unknown operation %q", req.Operation)
	}
}

func root(req Request) types.Hash {
	if len(req.Roots) == 0 {
		return types.EmptyHash
	}
	return req.Roots[0]
}

func nullifier(req Request) types.Hash {
	if len(req.NullifierHashes) == 0 {
		return types.EmptyHash
	}
	return req.NullifierHashes[0]
}

func changeCommitment(req Request) types.Hash {
	if len(req.ChangeCommitments) == 0 {
		return types.EmptyHash
	}
	return req.ChangeCommitments[0]
}

func dispatchUnshield(req Request) (string, []interface{}, error) {
	amount := req.Amounts
	if len(amount) == 0 {
		return "", nil, fmt.Errorf("relay: unshield requires an amount")
	}
	if req.Token.IsNative() {
		return "unshieldNative", []interface{}{
			proofArg(req.Proof),
			hash32(root(req)),
			hash32(nullifier(req)),
			addr(req.Recipient),
			amount[0],
			hash32(changeCommitment(req)),
			addr(req.Relayer),
			req.Fee,
		}, nil
	}
	return "unshieldToken", []interface{}{
		proofArg(req.Proof),
		hash32(root(req)),
		hash32(nullifier(req)),
		addr(req.Recipient),
		addr(req.Token),
		amount[0],
		hash32(changeCommitment(req)),
		addr(req.Relayer),
		req.Fee,
	}, nil
}

func proofArg(p types.GrothProof) [8][32]byte {
	var out [8][32]byte
	for i, h := range p {
		out[i] = [32]byte(h)
	}
	return out
}

func proofsArg(ps []types.GrothProof) [][8][32]byte {
	out := make([][8][32]byte, len(ps))
	for i, p := range ps {
		out[i] = proofArg(p)
	}
	return out
}

func hashesSlice(hs []types.Hash) [][32]byte {
	out := make([][32]byte, len(hs))
	for i, h := range hs {
		out[i] = [32]byte(h)
	}
	return out
}

func hashes5(hs []types.Hash) [5][32]byte {
	var out [5][32]byte
	for i := 0; i < len(hs) && i < 5; i++ {
		out[i] = [32]byte(hs[i])
	}
	return out
}

func hash32(h types.Hash) [32]byte {
	return [32]byte(h)
}

func addr(a types.Address) common.Address {
	return common.BytesToAddress(a[:])
}

func memoAt(memos [][]byte, i int) []byte {
	if i >= len(memos) {
		return []byte{}
	}
	return memos[i]
}
