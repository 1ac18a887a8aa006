package relay

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/notfartdev/zdoge-sub003/pkg/types"
)

var errBalanceTooLow = errors.New("balance below gas floor")

type fakeAvailability struct{ err error }

func (f fakeAvailability) Available(ctx context.Context) error { return f.err }

type fakePoolReader struct{ spent map[types.Hash]bool }

func (f fakePoolReader) IsNullifierSpent(ctx context.Context, n types.Hash) (bool, error) {
	return f.spent[n], nil
}

type fakeRootChecker struct{ known map[types.Hash]bool }

func (f fakeRootChecker) IsKnownRoot(ctx context.Context, pool types.Address, root types.Hash) (bool, error) {
	return f.known[root], nil
}

type fakeTokenChecker struct{ supported map[types.Address]bool }

func (f fakeTokenChecker) SupportedTokens(ctx context.Context, pool types.Address, token types.Address) (bool, error) {
	return f.supported[token], nil
}

func hashN(b byte) types.Hash {
	var h types.Hash
	h[31] = b
	return h
}

func validUnshieldRequest() Request {
	root := hashN(1)
	null := hashN(2)
	return Request{
		Operation:         OpUnshield,
		PoolAddress:       types.Address{0xaa},
		Proof:             types.GrothProof{hashN(9)},
		Roots:             []types.Hash{root},
		NullifierHashes:   []types.Hash{null},
		Recipient:         types.Address{0xbb},
		Token:             types.EmptyAddress,
		Amounts:           []*big.Int{big.NewInt(1000)},
		ChangeCommitments: []types.Hash{hashN(3)},
		Relayer:           types.Address{0xcc},
		Fee:               big.NewInt(10),
	}
}

func runGatesWith(t *testing.T, req Request) error {
	t.Helper()
	return RunGates(
		context.Background(),
		req,
		fakeAvailability{},
		fakePoolReader{spent: map[types.Hash]bool{}},
		fakeRootChecker{known: map[types.Hash]bool{req.Roots[0]: true}},
		fakeTokenChecker{supported: map[types.Address]bool{}},
		DefaultFeePolicy(0),
	)
}

func TestRunGatesAcceptsValidUnshield(t *testing.T) {
	require.NoError(t, runGatesWith(t, validUnshieldRequest()))
}

func TestRunGatesRejectsUnavailableRelayer(t *testing.T) {
	req := validUnshieldRequest()
	err := RunGates(context.Background(), req,
		fakeAvailability{err: errBalanceTooLow},
		fakePoolReader{}, fakeRootChecker{known: map[types.Hash]bool{req.Roots[0]: true}},
		fakeTokenChecker{}, DefaultFeePolicy(0))
	require.ErrorIs(t, err, ErrRelayerUnavailable)
}

func TestRunGatesRejectsUnknownRoot(t *testing.T) {
	req := validUnshieldRequest()
	err := RunGates(context.Background(), req, fakeAvailability{},
		fakePoolReader{spent: map[types.Hash]bool{}},
		fakeRootChecker{known: map[types.Hash]bool{}},
		fakeTokenChecker{}, DefaultFeePolicy(0))
	require.ErrorIs(t, err, ErrUnknownRoot)
}

func TestRunGatesRejectsSpentNullifier(t *testing.T) {
	req := validUnshieldRequest()
	err := RunGates(context.Background(), req, fakeAvailability{},
		fakePoolReader{spent: map[types.Hash]bool{req.NullifierHashes[0]: true}},
		fakeRootChecker{known: map[types.Hash]bool{req.Roots[0]: true}},
		fakeTokenChecker{}, DefaultFeePolicy(0))
	require.ErrorIs(t, err, ErrNullifierSpent)
}

func TestRunGatesRejectsMissingFee(t *testing.T) {
	req := validUnshieldRequest()
	req.Fee = nil
	require.ErrorIs(t, runGatesWith(t, req), ErrMissingFee)
}

func TestRunGatesRejectsFeeBelowFloor(t *testing.T) {
	req := validUnshieldRequest()
	req.Fee = big.NewInt(0)
	require.ErrorIs(t, runGatesWith(t, req), ErrFeeTooLow)
}

func TestRunGatesRejectsOversizedMemo(t *testing.T) {
	req := validUnshieldRequest()
	req.Operation = OpTransfer
	req.OutputCommitment1 = hashN(4)
	req.OutputCommitment2 = hashN(5)
	req.Memos = [][]byte{make([]byte, types.MemoMaxBytes+1)}
	require.ErrorIs(t, runGatesWith(t, req), ErrMemoTooLarge)
}

func TestRunGatesRejectsBatchSizeMismatch(t *testing.T) {
	req := validUnshieldRequest()
	req.Operation = OpBatchUnshield
	req.Proofs = []types.GrothProof{{}}
	req.Roots = []types.Hash{hashN(1), hashN(2)} // length mismatch against one proof
	req.NullifierHashes = []types.Hash{hashN(3)}
	req.Amounts = []*big.Int{big.NewInt(1)}
	req.ChangeCommitments = []types.Hash{hashN(4)}
	req.TotalFee = big.NewInt(1)
	require.ErrorIs(t, runGatesWith(t, req), ErrBatchSizeInvalid)
}

func TestRunGatesRejectsUnsupportedToken(t *testing.T) {
	req := validUnshieldRequest()
	req.Token = types.Address{0x01}
	err := RunGates(context.Background(), req, fakeAvailability{},
		fakePoolReader{spent: map[types.Hash]bool{}},
		fakeRootChecker{known: map[types.Hash]bool{req.Roots[0]: true}},
		fakeTokenChecker{supported: map[types.Address]bool{}},
		DefaultFeePolicy(0))
	require.ErrorIs(t, err, ErrUnsupportedToken)
}

func validTransferRequest() Request {
	root := hashN(1)
	null := hashN(2)
	return Request{
		Operation:         OpTransfer,
		PoolAddress:       types.Address{0xaa},
		Proof:             types.GrothProof{hashN(9)},
		Roots:             []types.Hash{root},
		NullifierHashes:   []types.Hash{null},
		OutputCommitment1: hashN(4),
		OutputCommitment2: hashN(5),
		Relayer:           types.Address{0xcc},
		Fee:               big.NewInt(10),
		Memos:             [][]byte{{1}, {2}},
	}
}

func TestCheckPublicInputsConsistencyAcceptsMatchingVector(t *testing.T) {
	req := validTransferRequest()
	wire, err := publicInputWire(req)
	require.NoError(t, err)
	req.PublicInputs = wire
	require.NoError(t, checkPublicInputsConsistency(req))
}

func TestCheckPublicInputsConsistencySkippedWhenNoVectorSupplied(t *testing.T) {
	req := validTransferRequest()
	require.NoError(t, checkPublicInputsConsistency(req))
}

// TestCheckPublicInputsConsistencyRejectsRelayerMismatch is literal
// vector test 5: a transfer request whose publicInputs[4] (relayer)
// differs from the request's relayer must be rejected here, before any
// on-chain call is made.
func TestCheckPublicInputsConsistencyRejectsRelayerMismatch(t *testing.T) {
	req := validTransferRequest()
	wire, err := publicInputWire(req)
	require.NoError(t, err)
	require.Equal(t, addrHash(req.Relayer), wire[4])

	tampered := append([]types.Hash{}, wire...)
	tampered[4] = addrHash(types.Address{0xde, 0xad})
	req.PublicInputs = tampered

	require.ErrorIs(t, checkPublicInputsConsistency(req), ErrPublicInputMismatch)
}

func TestRunGatesRejectsRelayerPublicInputMismatch(t *testing.T) {
	req := validTransferRequest()
	wire, err := publicInputWire(req)
	require.NoError(t, err)
	tampered := append([]types.Hash{}, wire...)
	tampered[4] = addrHash(types.Address{0xde, 0xad})
	req.PublicInputs = tampered

	err = RunGates(context.Background(), req, fakeAvailability{},
		fakePoolReader{spent: map[types.Hash]bool{}},
		fakeRootChecker{known: map[types.Hash]bool{req.Roots[0]: true}},
		fakeTokenChecker{}, DefaultFeePolicy(0))
	require.ErrorIs(t, err, ErrPublicInputMismatch)
}

func TestCheckPublicInputsConsistencyRejectsFeeMismatch(t *testing.T) {
	req := validTransferRequest()
	wire, err := publicInputWire(req)
	require.NoError(t, err)
	tampered := append([]types.Hash{}, wire...)
	tampered[5] = amountHash(big.NewInt(999))
	req.PublicInputs = tampered

	require.ErrorIs(t, checkPublicInputsConsistency(req), ErrPublicInputMismatch)
}

func TestCheckPublicInputsConsistencyRejectsShortVector(t *testing.T) {
	req := validTransferRequest()
	req.PublicInputs = []types.Hash{req.Roots[0]}
	require.ErrorIs(t, checkPublicInputsConsistency(req), ErrPublicInputMismatch)
}

func TestPublicInputWireSwapExcludesRelayerAndFee(t *testing.T) {
	req := Request{
		Operation:         OpSwap,
		Roots:             []types.Hash{hashN(1)},
		NullifierHashes:   []types.Hash{hashN(2)},
		OutputCommitment1: hashN(4),
		OutputCommitment2: hashN(5),
		TokenIn:           types.Address{0x01},
		TokenOut:          types.Address{0x02},
		SwapAmount:        big.NewInt(100),
		OutputAmount:      big.NewInt(90),
		MinAmountOut:      big.NewInt(85),
	}
	wire, err := publicInputWire(req)
	require.NoError(t, err)
	require.Len(t, wire, 9)
	for _, w := range wire {
		require.NotEqual(t, addrHash(types.Address{0xcc}), w)
	}
}

func TestCanonicalKeyStableUnderNullifierOrder(t *testing.T) {
	req := validUnshieldRequest()
	req.NullifierHashes = []types.Hash{hashN(2), hashN(5)}
	reordered := req
	reordered.NullifierHashes = []types.Hash{hashN(5), hashN(2)}
	require.Equal(t, canonicalKey(req), canonicalKey(reordered))
}

func TestDedupRingStoreAndLookup(t *testing.T) {
	ring := NewDedupRing()
	key := canonicalKey(validUnshieldRequest())
	_, ok := ring.Lookup(key)
	require.False(t, ok)

	ring.Store(key, hashN(7))
	got, ok := ring.Lookup(key)
	require.True(t, ok)
	require.Equal(t, hashN(7), got)
}
