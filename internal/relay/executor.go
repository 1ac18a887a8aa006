package relay

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"

	"github.com/notfartdev/zdoge-sub003/internal/chain"
	"github.com/notfartdev/zdoge-sub003/pkg/types"
)

// GasFloor is the minimum native balance the executor keypair must hold
// to be considered available (spec.md §4.5 gate 1, "e.g. 0.01
// DOGE-equivalent").
var GasFloor = new(big.Int).Mul(big.NewInt(1e16), big.NewInt(1)) // 0.01 * 1e18

// Executor submits proof-bearing transactions to the pool contract. It
// owns the relayer's signing key and serializes nonce assignment across
// every submission (spec.md §5: "the relayer's on-chain account is
// singular").
type Executor struct {
	client  *chain.Client
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int

	mu        sync.Mutex // serializes nonce assignment
	nextNonce uint64
	haveNonce bool

	dedup *DedupRing
	log   *logrus.Entry
}

// NewExecutor creates an Executor signing with key, targeting chainID.
func NewExecutor(client *chain.Client, key *ecdsa.PrivateKey, chainID *big.Int, log *logrus.Entry) *Executor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	pub := key.Public().(*ecdsa.PublicKey)
	return &Executor{
		client:  client,
		key:     key,
		from:    crypto.PubkeyToAddress(*pub),
		chainID: chainID,
		dedup:   NewDedupRing(),
		log:     log,
	}
}

// Available implements the availability gate (spec.md §4.5 gate 1).
func (e *Executor) Available(ctx context.Context) error {
	balance, err := e.client.Raw().BalanceAt(ctx, e.from, nil)
	if err != nil {
		return fmt.Errorf("query executor balance: %w", err)
	}
	if balance.Cmp(GasFloor) < 0 {
		return fmt.Errorf("balance %s below gas floor %s", balance, GasFloor)
	}
	return nil
}

// Address returns the executor's signing address.
func (e *Executor) Address() types.Address {
	return types.AddressFromBytes(e.from[:])
}

// takeNonce returns the next nonce to use, initializing from the chain
// on first use. Must be called with e.mu held.
func (e *Executor) takeNonce(ctx context.Context) (uint64, error) {
	if !e.haveNonce {
		n, err := e.client.Raw().PendingNonceAt(ctx, e.from)
		if err != nil {
			return 0, fmt.Errorf("query pending nonce: %w", err)
		}
		e.nextNonce = n
		e.haveNonce = true
	}
	n := e.nextNonce
	e.nextNonce++
	return n, nil
}

// SimulateResult is the response to /relay/simulate (spec.md §6).
type SimulateResult struct {
	WouldPass    bool
	DecodedError ContractErrorName // empty if WouldPass, or if the revert carried no recognizable selector
	Explanation  string
}

// Simulate performs a call-level dry run of req's dispatched function
// against pending state (spec.md §4.5 "Simulation").
func (e *Executor) Simulate(ctx context.Context, req Request) (*SimulateResult, error) {
	method, args, err := dispatch(req)
	if err != nil {
		return nil, err
	}

	input, err := e.client.ABI().Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	to := common.BytesToAddress(req.PoolAddress[:])
	_, callErr := e.client.Raw().CallContract(ctx, ethereum.CallMsg{From: e.from, To: &to, Data: input}, nil)
	if callErr == nil {
		return &SimulateResult{WouldPass: true}, nil
	}

	name, explanation := e.decodeRevert(callErr)
	return &SimulateResult{WouldPass: false, DecodedError: name, Explanation: explanation}, nil
}

// decodeRevert extracts the 4-byte selector from a CallContract revert
// and resolves it against the pool contract's named custom errors
// (spec.md §4.5 "Error decoding"). An empty name means the revert
// carried no data at all or an unrecognized selector.
func (e *Executor) decodeRevert(err error) (ContractErrorName, string) {
	data := extractRevertData(err)
	if len(data) < 4 {
		return "", err.Error()
	}
	var sel [4]byte
	copy(sel[:], data[:4])
	name := e.client.ErrorName(sel)
	if name == "" {
		return "", "the contract reverted with an unrecognized selector"
	}
	cname := ContractErrorName(name)
	return cname, Explain(cname)
}

// extractRevertData pulls the raw revert bytes out of an RPC error, if
// the backend surfaced one (go-ethereum's rpc.DataError convention).
func extractRevertData(err error) []byte {
	var de rpc.DataError
	if !errors.As(err, &de) {
		return nil
	}
	raw, ok := de.ErrorData().(string)
	if !ok {
		return nil
	}
	data, decodeErr := hexutil.Decode(raw)
	if decodeErr != nil {
		return nil
	}
	return data
}

// SubmitResult is the response to a submitting /relay/* endpoint
// (spec.md §6).
type SubmitResult struct {
	TxHashes    []types.Hash // first entry is primary
	LeafIndices []uint64
	Duplicate   bool
}

// Submit simulates then sends req's dispatched transaction, waits for
// its receipt, and extracts freshly inserted leaf indices (spec.md
// §4.5 "Receipt parsing"). A prior identical request within the dedup
// window short-circuits with Duplicate=true.
func (e *Executor) Submit(ctx context.Context, req Request) (*SubmitResult, error) {
	key := canonicalKey(req)
	if prior, ok := e.dedup.Lookup(key); ok {
		return &SubmitResult{TxHashes: []types.Hash{prior}, Duplicate: true}, nil
	}

	if req.Operation == OpBatchUnshield {
		res, fellThrough, err := e.trySubmitBatchUnshield(ctx, req, key)
		if err != nil {
			return nil, err
		}
		if !fellThrough {
			return res, nil
		}
	} else {
		sim, err := e.Simulate(ctx, req)
		if err != nil {
			return nil, err
		}
		if !sim.WouldPass {
			return nil, fmt.Errorf("%v reverted: %s", req.Operation, sim.Explanation)
		}
	}

	tx, err := e.send(ctx, req)
	if err != nil {
		if isReplacementUnderpriced(err) {
			if prior, ok := e.dedup.Lookup(key); ok {
				return &SubmitResult{TxHashes: []types.Hash{prior}, Duplicate: true}, nil
			}
		}
		return nil, err
	}
	txHash := types.Hash(tx.Hash())
	e.dedup.Store(key, txHash)

	receipt, err := e.waitReceipt(ctx, tx)
	if err != nil {
		// The transaction was submitted; the caller must be told the
		// hash and invited to poll rather than treating this as failure
		// (spec.md §5 cancellation semantics).
		return &SubmitResult{TxHashes: []types.Hash{txHash}}, nil
	}

	leafIndices, err := e.client.LeafIndicesFromReceipt(receipt)
	if err != nil {
		e.log.WithError(err).Warn("failed to parse leaf indices from receipt")
	}

	return &SubmitResult{TxHashes: []types.Hash{txHash}, LeafIndices: leafIndices}, nil
}

// trySubmitBatchUnshield simulates batchUnshield first; if the pool
// contract lacks that function (a revert with no decodable selector,
// consistent with calling a function the contract never defined), it
// transparently degrades to one unshieldNative/unshieldToken call per
// proof, splitting totalFee evenly with the remainder on the first
// (spec.md §4.5). The bool return reports whether the caller should
// fall through to the ordinary single-call submission path.
func (e *Executor) trySubmitBatchUnshield(ctx context.Context, req Request, key dedupKey) (*SubmitResult, bool, error) {
	sim, err := e.Simulate(ctx, req)
	if err != nil {
		return nil, false, err
	}
	if sim.WouldPass {
		return nil, true, nil
	}
	if sim.DecodedError != "" {
		return nil, false, fmt.Errorf("batchUnshield reverted: %s", sim.Explanation)
	}

	n := len(req.Proofs)
	fees := splitFeeEvenly(req.TotalFee, n)

	var hashes []types.Hash
	var allIndices []uint64
	for i := 0; i < n; i++ {
		single := Request{
			Operation:         OpUnshield,
			PoolAddress:       req.PoolAddress,
			Proof:             req.Proofs[i],
			Roots:             []types.Hash{req.Roots[i]},
			NullifierHashes:   []types.Hash{req.NullifierHashes[i]},
			Recipient:         req.Recipient,
			Token:             req.Token,
			Amounts:           []*big.Int{req.Amounts[i]},
			ChangeCommitments: []types.Hash{req.ChangeCommitments[i]},
			Relayer:           req.Relayer,
			Fee:               fees[i],
		}
		tx, sendErr := e.send(ctx, single)
		if sendErr != nil {
			return nil, false, fmt.Errorf("batchUnshield fallback, proof %d: %w", i, sendErr)
		}
		hashes = append(hashes, types.Hash(tx.Hash()))
		if receipt, werr := e.waitReceipt(ctx, tx); werr == nil {
			if idx, ierr := e.client.LeafIndicesFromReceipt(receipt); ierr == nil {
				allIndices = append(allIndices, idx...)
			}
		}
	}
	e.dedup.Store(key, hashes[0])
	return &SubmitResult{TxHashes: hashes, LeafIndices: allIndices}, false, nil
}

// splitFeeEvenly divides total into n parts by floor division, with the
// remainder added to the first part (spec.md §4.5).
func splitFeeEvenly(total *big.Int, n int) []*big.Int {
	nBig := big.NewInt(int64(n))
	base := new(big.Int).Div(total, nBig)
	remainder := new(big.Int).Mod(total, nBig)

	fees := make([]*big.Int, n)
	for i := 0; i < n; i++ {
		fees[i] = new(big.Int).Set(base)
	}
	fees[0].Add(fees[0], remainder)
	return fees
}

// isReplacementUnderpriced reports whether err is the familiar mempool
// rejection for resubmitting an identical nonce at the same or lower
// gas price (spec.md §4.5 dedup special case).
func isReplacementUnderpriced(err error) bool {
	return err != nil && strings.Contains(err.Error(), "replacement transaction underpriced")
}

func (e *Executor) send(ctx context.Context, req Request) (*gethtypes.Transaction, error) {
	method, args, err := dispatch(req)
	if err != nil {
		return nil, err
	}
	input, err := e.client.ABI().Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	e.mu.Lock()
	nonce, err := e.takeNonce(ctx)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	gasPrice, err := e.client.Raw().SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}
	to := common.BytesToAddress(req.PoolAddress[:])
	gasLimit, err := e.client.Raw().EstimateGas(ctx, ethereum.CallMsg{From: e.from, To: &to, Data: input})
	if err != nil {
		gasLimit = 500000 // conservative fallback if estimation itself reverts
	}

	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     input,
	})

	signer := gethtypes.NewEIP155Signer(e.chainID)
	signedTx, err := gethtypes.SignTx(tx, signer, e.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	if err := e.client.Raw().SendTransaction(ctx, signedTx); err != nil {
		return nil, err
	}
	return signedTx, nil
}

func (e *Executor) waitReceipt(ctx context.Context, tx *gethtypes.Transaction) (*gethtypes.Receipt, error) {
	return bind.WaitMined(ctx, e.client.Raw(), tx)
}
