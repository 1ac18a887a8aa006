package types

// CommitmentKind identifies how a commitment entered the pool (spec.md §4.3).
type CommitmentKind uint8

const (
	CommitmentKindShield CommitmentKind = iota
	CommitmentKindTransfer
	CommitmentKindSwap
	CommitmentKindBatchUnshieldChange
)

func (k CommitmentKind) String() string {
	switch k {
	case CommitmentKindShield:
		return "shield"
	case CommitmentKindTransfer:
		return "transfer"
	case CommitmentKindSwap:
		return "swap"
	case CommitmentKindBatchUnshieldChange:
		return "batch-unshield-change"
	default:
		return "unknown"
	}
}

// CommitmentMeta is the metadata the pool retains for every inserted
// commitment (spec.md §4.3 commitments mapping).
type CommitmentMeta struct {
	LeafIndex   uint64
	Token       Address
	Amount      string // decimal string, base units (may exceed uint64 range)
	Timestamp   uint64
	BlockNumber uint64
	TxHash      Hash
	Kind        CommitmentKind
}

// TransferMemo is one entry of the pool's encrypted-memo log, keyed by the
// nullifier that authorized the outputs it accompanies (spec.md §4.3,
// §4.4 Transfer/Swap application).
type TransferMemo struct {
	NullifierHash Hash
	Outputs       []Hash
	Memos         [][]byte
	LeafIndices   []uint64
	Timestamp     uint64
	TxHash        Hash
	// seq disambiguates insertion order for memos sharing a timestamp
	// (spec.md §4.4 get_memos: "ordered by (timestamp asc, then insertion order)").
	seq uint64
}

// Seq returns the memo's insertion sequence number.
func (m TransferMemo) Seq() uint64 { return m.seq }

// WithSeq returns a copy of m stamped with the given sequence number.
func (m TransferMemo) WithSeq(seq uint64) TransferMemo {
	m.seq = seq
	return m
}

// GrothProof is the Groth16 proof in the 8-field-element serialization the
// on-chain verifier expects (spec.md §4.5 Request shape): [A.X, A.Y, B.X0,
// B.X1, B.Y0, B.Y1, C.X, C.Y].
type GrothProof [8]Hash

// MemoMaxBytes is the contract-fixed memo size limit (spec.md §4.3, §9).
const MemoMaxBytes = 1024
