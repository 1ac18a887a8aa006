// Package chain wraps go-ethereum's RPC client, ABI codec, and bound
// contract for the one pool-contract surface this system needs: the
// five events in spec.md §6 and the view/mutating calls in spec.md
// §4.5. Grounded on go-ethereum's own ethclient/accounts/abi/bind
// conventions (the teacher carries no EVM client code of its own; this
// dependency is adopted per SPEC_FULL.md's domain stack, following how
// wyf-ACCEPT-eth2030 and Alex110709-obsidian-core pull in go-ethereum).
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/notfartdev/zdoge-sub003/pkg/types"
)

// Client is a thin wrapper over an HTTP ethclient (for calls and bounded
// log queries) and an optional WebSocket ethclient (for live
// subscription, spec.md §4.4 "Live" mode).
type Client struct {
	http *ethclient.Client
	ws   *ethclient.Client // nil if no WebSocket endpoint was configured

	contractABI abi.ABI
	log         *logrus.Entry

	eventTopics   map[string]common.Hash // event name -> topic0
	errorSelector map[[4]byte]string     // 4-byte selector -> custom error name
}

// Dial connects to httpEndpoint (required) and wsEndpoint (optional; if
// empty, live subscription is unavailable and the indexer must run in
// polling-only mode).
func Dial(ctx context.Context, httpEndpoint, wsEndpoint string, log *logrus.Entry) (*Client, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	httpClient, err := ethclient.DialContext(ctx, httpEndpoint)
	if err != nil {
		return nil, fmt.Errorf("dial http rpc: %w", err)
	}

	var wsClient *ethclient.Client
	if wsEndpoint != "" {
		wsClient, err = ethclient.DialContext(ctx, wsEndpoint)
		if err != nil {
			return nil, fmt.Errorf("dial ws rpc: %w", err)
		}
	}

	parsedABI, err := abi.JSON(strings.NewReader(poolABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}

	c := &Client{
		http:        httpClient,
		ws:          wsClient,
		contractABI: parsedABI,
		log:         log,
	}
	c.indexTopicsAndErrors()
	return c, nil
}

func (c *Client) indexTopicsAndErrors() {
	c.eventTopics = make(map[string]common.Hash)
	for name, ev := range c.contractABI.Events {
		c.eventTopics[name] = ev.ID
	}

	c.errorSelector = make(map[[4]byte]string)
	for name, e := range c.contractABI.Errors {
		var sel [4]byte
		copy(sel[:], e.ID[:4])
		c.errorSelector[sel] = name
	}
}

// HasLiveSubscription reports whether a WebSocket endpoint was
// configured (spec.md §4.4 "Live" mode requires one).
func (c *Client) HasLiveSubscription() bool {
	return c.ws != nil
}

// BlockNumber returns the current chain head height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.http.BlockNumber(ctx)
}

// eventNames are the four pool-state log topics the indexer applies
// directly (spec.md §6).
var eventNames = []string{"Shield", "Transfer", "Unshield", "Swap"}

// filteredTopicNames additionally includes LeafInserted, which carries
// no state of its own but resolves a Swap event's output leafIndex
// (Swap's log, unlike Shield/Transfer, has no indexed leafIndex field).
var filteredTopicNames = append(append([]string{}, eventNames...), "LeafInserted")

func (c *Client) filterQuery(poolAddress types.Address, fromBlock, toBlock uint64) ethereum.FilterQuery {
	topics := make([]common.Hash, 0, len(filteredTopicNames))
	for _, name := range filteredTopicNames {
		topics = append(topics, c.eventTopics[name])
	}
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{common.BytesToAddress(poolAddress[:])},
		Topics:    [][]common.Hash{topics},
	}
}

// FetchLogs performs the bounded-range catch-up query (spec.md §4.4
// mode 1), returning raw logs still in chain order (callers must sort
// by (BlockNumber, Index) themselves since FilterLogs does not
// guarantee it across RPC providers).
func (c *Client) FetchLogs(ctx context.Context, poolAddress types.Address, fromBlock, toBlock uint64) ([]gethtypes.Log, error) {
	logs, err := c.http.FilterLogs(ctx, c.filterQuery(poolAddress, fromBlock, toBlock))
	if err != nil {
		return nil, fmt.Errorf("filter logs: %w", err)
	}
	return logs, nil
}

// SubscribeLogs opens a live log subscription over the WebSocket client
// (spec.md §4.4 mode 2). Callers must call HasLiveSubscription first.
func (c *Client) SubscribeLogs(ctx context.Context, poolAddress types.Address) (chan gethtypes.Log, ethereum.Subscription, error) {
	if c.ws == nil {
		return nil, nil, fmt.Errorf("chain: no websocket endpoint configured")
	}
	ch := make(chan gethtypes.Log, 256)
	query := ethereum.FilterQuery{
		Addresses: []common.Address{common.BytesToAddress(poolAddress[:])},
	}
	sub, err := c.ws.SubscribeFilterLogs(ctx, query, ch)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe logs: %w", err)
	}
	return ch, sub, nil
}

// EventName returns the decoded event name for a log's topic0 (one of
// the four pool events or "LeafInserted"), or "" if it matches none.
func (c *Client) EventName(log gethtypes.Log) string {
	if len(log.Topics) == 0 {
		return ""
	}
	for _, name := range eventNames {
		if log.Topics[0] == c.eventTopics[name] {
			return name
		}
	}
	if log.Topics[0] == c.eventTopics["LeafInserted"] {
		return "LeafInserted"
	}
	return ""
}

// IsKnownRoot calls the pool contract's isKnownRoot(bytes32) view
// (spec.md §4.5 policy gate 4).
func (c *Client) IsKnownRoot(ctx context.Context, poolAddress types.Address, root types.Hash) (bool, error) {
	return c.callViewBool(ctx, poolAddress, "isKnownRoot", [32]byte(root))
}

// SupportedTokens calls the pool contract's supportedTokens(address)
// view (spec.md §4.5 policy gate 7).
func (c *Client) SupportedTokens(ctx context.Context, poolAddress types.Address, token types.Address) (bool, error) {
	return c.callViewBool(ctx, poolAddress, "supportedTokens", common.BytesToAddress(token[:]))
}

func (c *Client) callViewBool(ctx context.Context, poolAddress types.Address, method string, args ...interface{}) (bool, error) {
	input, err := c.contractABI.Pack(method, args...)
	if err != nil {
		return false, fmt.Errorf("pack %s: %w", method, err)
	}
	to := common.BytesToAddress(poolAddress[:])
	result, err := c.http.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return false, c.translateCallError(method, err)
	}
	vals, err := c.contractABI.Unpack(method, result)
	if err != nil {
		return false, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(vals) != 1 {
		return false, fmt.Errorf("unpack %s: unexpected output count %d", method, len(vals))
	}
	out, ok := vals[0].(bool)
	if !ok {
		return false, fmt.Errorf("unpack %s: unexpected output type %T", method, vals[0])
	}
	return out, nil
}

// BoundContract returns a bind.BoundContract for poolAddress, used by
// internal/relay for call-level simulation and transaction submission.
func (c *Client) BoundContract(poolAddress types.Address) *bind.BoundContract {
	addr := common.BytesToAddress(poolAddress[:])
	return bind.NewBoundContract(addr, c.contractABI, c.http, c.http, c.http)
}

// ABI exposes the parsed contract ABI for packing call data and
// decoding custom-error reverts (spec.md §4.5 error decoding).
func (c *Client) ABI() abi.ABI {
	return c.contractABI
}

// ErrorName resolves a revert's 4-byte selector to one of the pool
// contract's named custom errors, or "" if unrecognized.
func (c *Client) ErrorName(selector [4]byte) string {
	return c.errorSelector[selector]
}

// Raw exposes the underlying HTTP ethclient for callers (internal/relay)
// that need lower-level access: nonce queries, gas estimation, raw
// transaction submission.
func (c *Client) Raw() *ethclient.Client {
	return c.http
}

func (c *Client) translateCallError(method string, err error) error {
	return fmt.Errorf("call %s: %w", method, err)
}
