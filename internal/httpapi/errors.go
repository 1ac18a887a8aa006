package httpapi

import (
	"errors"
	"net/http"

	"github.com/notfartdev/zdoge-sub003/internal/merkle"
	"github.com/notfartdev/zdoge-sub003/internal/relay"
)

// ErrorCode is the closed set of machine-readable error codes every
// relay/read endpoint can return (spec.md §6 "Errors").
type ErrorCode string

const (
	CodeMissingParams       ErrorCode = "MISSING_PARAMS"
	CodeProofFormatError    ErrorCode = "PROOF_FORMAT_ERROR"
	CodeInvalidProof        ErrorCode = "INVALID_PROOF"
	CodeNullifierSpent      ErrorCode = "NULLIFIER_SPENT"
	CodeUnknownRoot         ErrorCode = "UNKNOWN_ROOT"
	CodeInsufficientLiquidity ErrorCode = "INSUFFICIENT_POOL_LIQUIDITY"
	CodeUnsupportedToken    ErrorCode = "UNSUPPORTED_TOKEN"
	CodeRelayerUnavailable  ErrorCode = "RELAYER_UNAVAILABLE"
	CodeNetworkError        ErrorCode = "NETWORK_ERROR"
	CodeRateLimited         ErrorCode = "RATE_LIMITED"
)

// errorEnvelope is the JSON body of every non-2xx response.
type errorEnvelope struct {
	Error struct {
		Code    ErrorCode `json:"code"`
		Message string    `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	var env errorEnvelope
	env.Error.Code = code
	env.Error.Message = message
	writeJSON(w, status, env)
}

// writeGateError translates a gate/pipeline error into the closed error
// code set and an HTTP status, falling back to NETWORK_ERROR for
// anything it doesn't recognize (spec.md §6).
func writeGateError(w http.ResponseWriter, err error) {
	code, status, msg := classifyError(err)
	writeError(w, status, code, msg)
}

func classifyError(err error) (ErrorCode, int, string) {
	switch {
	case errors.Is(err, relay.ErrRelayerUnavailable):
		return CodeRelayerUnavailable, http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, relay.ErrInvalidProofShape),
		errors.Is(err, relay.ErrBatchSizeInvalid),
		errors.Is(err, relay.ErrMemoTooLarge),
		errors.Is(err, relay.ErrAmountNotPositive),
		errors.Is(err, relay.ErrFeeNegative),
		errors.Is(err, relay.ErrFeeTooLow),
		errors.Is(err, relay.ErrFeeTooHigh):
		return CodeProofFormatError, http.StatusBadRequest, err.Error()
	case errors.Is(err, relay.ErrMissingFee):
		return CodeMissingParams, http.StatusBadRequest, err.Error()
	case errors.Is(err, relay.ErrPublicInputMismatch):
		return CodeInvalidProof, http.StatusBadRequest, err.Error()
	case errors.Is(err, relay.ErrUnknownRoot), errors.Is(err, merkle.ErrOutOfSync):
		return CodeUnknownRoot, http.StatusConflict, err.Error()
	case errors.Is(err, relay.ErrNullifierSpent):
		return CodeNullifierSpent, http.StatusConflict, err.Error()
	case errors.Is(err, relay.ErrUnsupportedToken):
		return CodeUnsupportedToken, http.StatusBadRequest, err.Error()
	default:
		return CodeNetworkError, http.StatusBadGateway, err.Error()
	}
}

// classifyContractError maps a decoded on-chain revert to the error
// code set (spec.md §6, §4.5 error decoding).
func classifyContractError(name relay.ContractErrorName) (ErrorCode, int) {
	switch name {
	case relay.ContractErrInvalidProof:
		return CodeInvalidProof, http.StatusBadRequest
	case relay.ContractErrNullifierAlreadySpent:
		return CodeNullifierSpent, http.StatusConflict
	case relay.ContractErrInsufficientPoolBalance:
		return CodeInsufficientLiquidity, http.StatusConflict
	case relay.ContractErrUnsupportedToken:
		return CodeUnsupportedToken, http.StatusBadRequest
	default:
		return CodeInvalidProof, http.StatusBadRequest
	}
}
