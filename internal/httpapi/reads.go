package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/notfartdev/zdoge-sub003/internal/merkle"
)

type rootResponse struct {
	Root             string `json:"root"`
	TotalCommitments uint64 `json:"totalCommitments"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	h, _, err := s.poolByAddrParam(r)
	if err != nil {
		writeGateError(w, err)
		return
	}
	info := h.State.GetRoot()
	writeJSON(w, http.StatusOK, rootResponse{
		Root:             info.Root.Hex(),
		TotalCommitments: info.TotalCommitments,
	})
}

type pathResponse struct {
	PathElements [merkle.Depth]string `json:"pathElements"`
	PathIndices  [merkle.Depth]bool   `json:"pathIndices"`
	Root         string               `json:"root"`
}

func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	h, _, err := s.poolByAddrParam(r)
	if err != nil {
		writeGateError(w, err)
		return
	}
	leafIndex, err := strconv.ParseUint(chi.URLParam(r, "leafIndex"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeMissingParams, "leafIndex must be a non-negative integer")
		return
	}
	path, err := h.State.GetPath(r.Context(), leafIndex)
	if err != nil {
		writeGateError(w, err)
		return
	}
	var resp pathResponse
	for i, e := range path.PathElements {
		resp.PathElements[i] = e.Hex()
	}
	resp.PathIndices = path.PathIndices
	resp.Root = path.Root.Hex()
	writeJSON(w, http.StatusOK, resp)
}

type memoResponse struct {
	NullifierHash string   `json:"nullifierHash"`
	Outputs       []string `json:"outputs"`
	Memos         [][]byte `json:"memos"`
	LeafIndices   []uint64 `json:"leafIndices"`
	Timestamp     uint64   `json:"timestamp"`
	TxHash        string   `json:"txHash"`
}

func (s *Server) handleMemos(w http.ResponseWriter, r *http.Request) {
	h, _, err := s.poolByAddrParam(r)
	if err != nil {
		writeGateError(w, err)
		return
	}
	var since uint64
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeMissingParams, "since must be a unix timestamp")
			return
		}
	}
	memos := h.State.GetMemos(since)
	out := make([]memoResponse, len(memos))
	for i, m := range memos {
		outputs := make([]string, len(m.Outputs))
		for j, o := range m.Outputs {
			outputs[j] = o.Hex()
		}
		out[i] = memoResponse{
			NullifierHash: m.NullifierHash.Hex(),
			Outputs:       outputs,
			Memos:         m.Memos,
			LeafIndices:   m.LeafIndices,
			Timestamp:     m.Timestamp,
			TxHash:        m.TxHash.Hex(),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type nullifierResponse struct {
	Spent bool `json:"spent"`
}

func (s *Server) handleNullifier(w http.ResponseWriter, r *http.Request) {
	h, _, err := s.poolByAddrParam(r)
	if err != nil {
		writeGateError(w, err)
		return
	}
	hash, err := parseHash(chi.URLParam(r, "hash"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeMissingParams, "invalid nullifier hash")
		return
	}
	spent, err := h.State.IsNullifierSpent(r.Context(), hash)
	if err != nil {
		writeGateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nullifierResponse{Spent: spent})
}

type commitmentResponse struct {
	Found       bool   `json:"found"`
	LeafIndex   uint64 `json:"leafIndex,omitempty"`
	Token       string `json:"token,omitempty"`
	Amount      string `json:"amount,omitempty"`
	Timestamp   uint64 `json:"timestamp,omitempty"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
	TxHash      string `json:"txHash,omitempty"`
	Kind        string `json:"kind,omitempty"`
}

func (s *Server) handleCommitment(w http.ResponseWriter, r *http.Request) {
	h, _, err := s.poolByAddrParam(r)
	if err != nil {
		writeGateError(w, err)
		return
	}
	hash, err := parseHash(chi.URLParam(r, "hash"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeMissingParams, "invalid commitment hash")
		return
	}
	meta, ok := h.State.GetCommitment(hash)
	if !ok {
		writeJSON(w, http.StatusOK, commitmentResponse{Found: false})
		return
	}
	writeJSON(w, http.StatusOK, commitmentResponse{
		Found:       true,
		LeafIndex:   meta.LeafIndex,
		Token:       meta.Token.Hex(),
		Amount:      meta.Amount,
		Timestamp:   meta.Timestamp,
		BlockNumber: meta.BlockNumber,
		TxHash:      meta.TxHash.Hex(),
		Kind:        meta.Kind.String(),
	})
}

// discoverRequest/discoverResponse implement spec.md §6's note-discovery
// scan: a client with a viewing key asks which of its candidate
// commitments already exist in the tree, since the pool does not index
// by recipient (recipients are only recoverable by trial-decrypting
// memos with a private viewing key, which this system never holds).
type discoverRequest struct {
	PoolAddress string   `json:"poolAddress"`
	Commitments []string `json:"commitments"`
}

type discoverResponse struct {
	Found []commitmentResponse `json:"found"`
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var req discoverRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeMissingParams, err.Error())
		return
	}
	poolAddr, err := parseAddress(req.PoolAddress)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeMissingParams, "invalid poolAddress")
		return
	}
	h, ok := s.pools[poolAddr]
	if !ok {
		writeGateError(w, errUnknownPool)
		return
	}
	commitments, err := parseHashes(req.Commitments)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeMissingParams, err.Error())
		return
	}

	out := make([]commitmentResponse, 0, len(commitments))
	for _, c := range commitments {
		meta, ok := h.State.GetCommitment(c)
		if !ok {
			continue
		}
		out = append(out, commitmentResponse{
			Found:       true,
			LeafIndex:   meta.LeafIndex,
			Token:       meta.Token.Hex(),
			Amount:      meta.Amount,
			Timestamp:   meta.Timestamp,
			BlockNumber: meta.BlockNumber,
			TxHash:      meta.TxHash.Hex(),
			Kind:        meta.Kind.String(),
		})
	}
	writeJSON(w, http.StatusOK, discoverResponse{Found: out})
}
