package httpapi

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"

	"github.com/notfartdev/zdoge-sub003/pkg/types"
)

// jsonHash/jsonAddress/jsonBigInt render the wire types as hex/decimal
// strings on the JSON boundary (spec.md §6), keeping internal packages
// in their native byte-array/big.Int representations.

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func parseHash(s string) (types.Hash, error) {
	if s == "" {
		return types.Hash{}, fmt.Errorf("empty hash")
	}
	return types.HashFromHex(s)
}

// parseOptionalHash treats an empty string as the zero hash rather
// than an error, for fields not every operation populates (e.g.
// outputCommitment2 on a single-output transfer).
func parseOptionalHash(s string) (types.Hash, error) {
	if s == "" {
		return types.EmptyHash, nil
	}
	return types.HashFromHex(s)
}

func parseHashes(ss []string) ([]types.Hash, error) {
	out := make([]types.Hash, len(ss))
	for i, s := range ss {
		h, err := parseHash(s)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		out[i] = h
	}
	return out, nil
}

func parseAddress(s string) (types.Address, error) {
	if s == "" {
		return types.EmptyAddress, nil
	}
	return types.AddressFromHex(s)
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal amount %q", s)
	}
	return n, nil
}

func parseAmounts(ss []string) ([]*big.Int, error) {
	out := make([]*big.Int, len(ss))
	for i, s := range ss {
		n, err := parseAmount(s)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		out[i] = n
	}
	return out, nil
}

func parseProof(fields []string) (types.GrothProof, error) {
	var p types.GrothProof
	if len(fields) != len(p) {
		return p, fmt.Errorf("proof must carry exactly %d field elements, got %d", len(p), len(fields))
	}
	for i, f := range fields {
		h, err := parseHash(f)
		if err != nil {
			return p, fmt.Errorf("proof element %d: %w", i, err)
		}
		p[i] = h
	}
	return p, nil
}

func parseProofs(pp [][]string) ([]types.GrothProof, error) {
	out := make([]types.GrothProof, len(pp))
	for i, fields := range pp {
		p, err := parseProof(fields)
		if err != nil {
			return nil, fmt.Errorf("proof %d: %w", i, err)
		}
		out[i] = p
	}
	return out, nil
}

