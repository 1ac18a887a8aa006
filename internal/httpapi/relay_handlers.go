package httpapi

import (
	"math/big"
	"net/http"

	"github.com/notfartdev/zdoge-sub003/internal/relay"
	"github.com/notfartdev/zdoge-sub003/pkg/types"
)

// relayRequest is the JSON shape every /relay/* submitting endpoint
// accepts; unused fields for a given operation are simply omitted by
// the caller (spec.md §6, mirroring relay.Request's union shape).
type relayRequest struct {
	PoolAddress string `json:"poolAddress"`

	Proof        []string   `json:"proof"`
	Proofs       [][]string `json:"proofs"`
	PublicInputs []string   `json:"publicInputs"`

	Roots           []string `json:"roots"`
	NullifierHashes []string `json:"nullifierHashes"`
	NumInputs       uint8    `json:"numInputs"`

	OutputCommitment1 string   `json:"outputCommitment1"`
	OutputCommitment2 string   `json:"outputCommitment2"`
	ChangeCommitments []string `json:"changeCommitments"`

	Recipient string `json:"recipient"`
	Token     string `json:"token"`
	TokenIn   string `json:"tokenIn"`
	TokenOut  string `json:"tokenOut"`

	Amounts      []string `json:"amounts"`
	Amount       string   `json:"amount"`
	SwapAmount   string   `json:"swapAmount"`
	OutputAmount string   `json:"outputAmount"`
	MinAmountOut string   `json:"minAmountOut"`

	Relayer  string `json:"relayer"`
	Fee      string `json:"fee"`
	TotalFee string `json:"totalFee"`

	Memos [][]byte `json:"memos"`
}

// toRequest converts the wire DTO into relay.Request for op.
func (req relayRequest) toRequest(op relay.Operation) (relay.Request, error) {
	var out relay.Request
	var err error

	out.Operation = op
	if out.PoolAddress, err = parseAddress(req.PoolAddress); err != nil {
		return out, err
	}
	if len(req.Proof) > 0 {
		if out.Proof, err = parseProof(req.Proof); err != nil {
			return out, err
		}
	}
	if len(req.Proofs) > 0 {
		if out.Proofs, err = parseProofs(req.Proofs); err != nil {
			return out, err
		}
	}
	if out.PublicInputs, err = parseHashes(req.PublicInputs); err != nil {
		return out, err
	}
	if out.Roots, err = parseHashes(req.Roots); err != nil {
		return out, err
	}
	if out.NullifierHashes, err = parseHashes(req.NullifierHashes); err != nil {
		return out, err
	}
	out.NumInputs = req.NumInputs
	if out.OutputCommitment1, err = parseOptionalHash(req.OutputCommitment1); err != nil {
		return out, err
	}
	if out.OutputCommitment2, err = parseOptionalHash(req.OutputCommitment2); err != nil {
		return out, err
	}
	if out.ChangeCommitments, err = parseHashes(req.ChangeCommitments); err != nil {
		return out, err
	}
	if out.Recipient, err = parseAddress(req.Recipient); err != nil {
		return out, err
	}
	if out.Token, err = parseAddress(req.Token); err != nil {
		return out, err
	}
	if out.TokenIn, err = parseAddress(req.TokenIn); err != nil {
		return out, err
	}
	if out.TokenOut, err = parseAddress(req.TokenOut); err != nil {
		return out, err
	}
	if len(req.Amounts) > 0 {
		if out.Amounts, err = parseAmounts(req.Amounts); err != nil {
			return out, err
		}
	} else if req.Amount != "" {
		amt, aerr := parseAmount(req.Amount)
		if aerr != nil {
			return out, aerr
		}
		out.Amounts = []*big.Int{amt}
	}
	if out.SwapAmount, err = parseAmount(req.SwapAmount); err != nil {
		return out, err
	}
	if out.OutputAmount, err = parseAmount(req.OutputAmount); err != nil {
		return out, err
	}
	if out.MinAmountOut, err = parseAmount(req.MinAmountOut); err != nil {
		return out, err
	}
	if out.Relayer, err = parseAddress(req.Relayer); err != nil {
		return out, err
	}
	if out.Fee, err = parseAmount(req.Fee); err != nil {
		return out, err
	}
	if out.TotalFee, err = parseAmount(req.TotalFee); err != nil {
		return out, err
	}
	out.Memos = req.Memos
	return out, nil
}

type relayInfoResponse struct {
	RelayerAddress string   `json:"relayerAddress"`
	Available      bool     `json:"available"`
	Pools          []string `json:"pools"`
}

func (s *Server) handleRelayInfo(w http.ResponseWriter, r *http.Request) {
	if s.exec == nil {
		writeError(w, http.StatusServiceUnavailable, CodeRelayerUnavailable, "this deployment serves reads only")
		return
	}
	pools := make([]string, 0, len(s.pools))
	for addr := range s.pools {
		pools = append(pools, addr.Hex())
	}
	available := s.exec.Available(r.Context()) == nil
	writeJSON(w, http.StatusOK, relayInfoResponse{
		RelayerAddress: s.exec.Address().Hex(),
		Available:      available,
		Pools:          pools,
	})
}

type simulateResponse struct {
	WouldPass    bool   `json:"wouldPass"`
	ErrorCode    ErrorCode `json:"errorCode,omitempty"`
	Explanation  string `json:"explanation,omitempty"`
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Operation relay.Operation `json:"operation"`
		relayRequest
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, CodeMissingParams, err.Error())
		return
	}
	req, err := body.relayRequest.toRequest(body.Operation)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeProofFormatError, err.Error())
		return
	}

	h, err := s.requirePool(req.PoolAddress)
	if err != nil {
		writeGateError(w, err)
		return
	}

	if gateErr := relay.RunGates(r.Context(), req, s.exec, h.State, s.chainClient, s.chainClient, s.feePolicy); gateErr != nil {
		writeGateError(w, gateErr)
		return
	}

	result, err := s.exec.Simulate(r.Context(), req)
	if err != nil {
		writeGateError(w, err)
		return
	}
	resp := simulateResponse{WouldPass: result.WouldPass, Explanation: result.Explanation}
	if !result.WouldPass && result.DecodedError != "" {
		code, _ := classifyContractError(result.DecodedError)
		resp.ErrorCode = code
	}
	writeJSON(w, http.StatusOK, resp)
}

type submitResponse struct {
	TxHashes    []string `json:"txHashes"`
	LeafIndices []uint64 `json:"leafIndices,omitempty"`
	Duplicate   bool     `json:"duplicate,omitempty"`
}

// submit runs the gate pipeline then dispatches req through the
// executor, shared by every /relay/* submitting endpoint.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, op relay.Operation) {
	if s.exec == nil {
		writeError(w, http.StatusServiceUnavailable, CodeRelayerUnavailable, "this deployment serves reads only")
		return
	}
	var body relayRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, CodeMissingParams, err.Error())
		return
	}
	req, err := body.toRequest(op)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeProofFormatError, err.Error())
		return
	}

	h, err := s.requirePool(req.PoolAddress)
	if err != nil {
		writeGateError(w, err)
		return
	}

	if gateErr := relay.RunGates(r.Context(), req, s.exec, h.State, s.chainClient, s.chainClient, s.feePolicy); gateErr != nil {
		writeGateError(w, gateErr)
		return
	}

	result, err := s.exec.Submit(r.Context(), req)
	if err != nil {
		writeGateError(w, err)
		return
	}

	hashes := make([]string, len(result.TxHashes))
	for i, h := range result.TxHashes {
		hashes[i] = h.Hex()
	}
	writeJSON(w, http.StatusOK, submitResponse{
		TxHashes:    hashes,
		LeafIndices: result.LeafIndices,
		Duplicate:   result.Duplicate,
	})
}

func (s *Server) requirePool(addr types.Address) (*PoolHandle, error) {
	h, ok := s.pools[addr]
	if !ok {
		return nil, errUnknownPool
	}
	return h, nil
}

func (s *Server) handleUnshield(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, relay.OpUnshield)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, relay.OpTransfer)
}

func (s *Server) handleTransferMulti(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, relay.OpTransferMulti)
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, relay.OpSwap)
}

func (s *Server) handleBatchTransfer(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, relay.OpBatchTransfer)
}

func (s *Server) handleBatchUnshield(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, relay.OpBatchUnshield)
}
