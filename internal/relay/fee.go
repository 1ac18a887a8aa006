package relay

import (
	"errors"
	"math/big"
)

// Fee sanity bounds (spec.md §4.5 policy gate 6): a default 0.5% of the
// transfer amount with a fixed minimum floor, both expressed in the
// token's base units. Grounded on the teacher's internal/economics/fees.go
// bounds-checking idiom (ValidateFee/MinFeePerByte), retargeted from a
// gas-market fee from a percentage-of-amount sanity check since this
// system has no block gas market of its own.
const (
	// DefaultFeeBps is 0.5% expressed in basis points (1 bps = 0.01%).
	DefaultFeeBps = 50
	// DefaultFeeCeilingBps caps the accepted fee at 5% of the amount,
	// beyond which a request is more likely malformed than generous.
	DefaultFeeCeilingBps = 500
)

var (
	// ErrFeeTooLow is returned when a request's fee falls under the
	// token-adjusted floor (spec.md §4.5 gate 6).
	ErrFeeTooLow = errors.New("relay: fee below minimum floor")
	// ErrFeeTooHigh is returned when a request's fee exceeds the ceiling.
	ErrFeeTooHigh = errors.New("relay: fee exceeds sanity ceiling")
)

// FeePolicy computes and validates the fee bounds for one token.
type FeePolicy struct {
	// MinFeeBase is the minimum fee floor in the token's base units
	// (spec.md §4.5: "0.001-token minimum, converted with the token's
	// decimals").
	MinFeeBase *big.Int
	FeeBps     int64
	CeilingBps int64
}

// DefaultFeePolicy returns the 0.5%-with-floor policy for a token with
// the given decimals, using a 0.001-token minimum.
func DefaultFeePolicy(decimals uint8) FeePolicy {
	// 0.001 * 10^decimals, floored at 1 base unit for very low-decimal tokens.
	floor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)-3), nil)
	if decimals < 3 {
		floor = big.NewInt(1)
	}
	return FeePolicy{
		MinFeeBase: floor,
		FeeBps:     DefaultFeeBps,
		CeilingBps: DefaultFeeCeilingBps,
	}
}

// Check validates fee against amount under this policy (spec.md §4.5
// gate 6): fee must be within [max(MinFeeBase, amount*FeeBps/10000),
// max(MinFeeBase, amount*CeilingBps/10000)].
func (p FeePolicy) Check(amount, fee *big.Int) error {
	expected := new(big.Int).Mul(amount, big.NewInt(p.FeeBps))
	expected.Div(expected, big.NewInt(10000))
	floor := expected
	if p.MinFeeBase.Cmp(floor) > 0 {
		floor = p.MinFeeBase
	}

	ceiling := new(big.Int).Mul(amount, big.NewInt(p.CeilingBps))
	ceiling.Div(ceiling, big.NewInt(10000))
	if p.MinFeeBase.Cmp(ceiling) > 0 {
		ceiling = p.MinFeeBase
	}

	if fee.Cmp(floor) < 0 {
		return ErrFeeTooLow
	}
	if fee.Cmp(ceiling) > 0 {
		return ErrFeeTooHigh
	}
	return nil
}
