package chain

// poolABIJSON is the subset of the shielded pool contract's ABI this
// system needs: the five events consumed by the indexer (spec.md §6)
// and the functions the relay executor calls or simulates (spec.md
// §4.5). Hand-maintained rather than generated, since no Solidity
// source ships with this repo.
const poolABIJSON = `[
  {"type":"event","name":"Shield","anonymous":false,"inputs":[
    {"name":"commitment","type":"bytes32","indexed":true},
    {"name":"leafIndex","type":"uint256","indexed":true},
    {"name":"token","type":"address","indexed":true},
    {"name":"amount","type":"uint256","indexed":false},
    {"name":"timestamp","type":"uint256","indexed":false}
  ]},
  {"type":"event","name":"Transfer","anonymous":false,"inputs":[
    {"name":"nullifierHash","type":"bytes32","indexed":true},
    {"name":"outputCommitment1","type":"bytes32","indexed":false},
    {"name":"outputCommitment2","type":"bytes32","indexed":false},
    {"name":"leafIndex1","type":"uint256","indexed":true},
    {"name":"leafIndex2","type":"uint256","indexed":true},
    {"name":"encryptedMemo1","type":"bytes","indexed":false},
    {"name":"encryptedMemo2","type":"bytes","indexed":false},
    {"name":"timestamp","type":"uint256","indexed":false}
  ]},
  {"type":"event","name":"Unshield","anonymous":false,"inputs":[
    {"name":"nullifierHash","type":"bytes32","indexed":true},
    {"name":"recipient","type":"address","indexed":true},
    {"name":"token","type":"address","indexed":true},
    {"name":"amount","type":"uint256","indexed":false},
    {"name":"relayer","type":"address","indexed":false},
    {"name":"fee","type":"uint256","indexed":false},
    {"name":"timestamp","type":"uint256","indexed":false}
  ]},
  {"type":"event","name":"Swap","anonymous":false,"inputs":[
    {"name":"inputNullifier","type":"bytes32","indexed":true},
    {"name":"outputCommitment","type":"bytes32","indexed":false},
    {"name":"tokenIn","type":"address","indexed":true},
    {"name":"tokenOut","type":"address","indexed":true},
    {"name":"amountIn","type":"uint256","indexed":false},
    {"name":"amountOut","type":"uint256","indexed":false},
    {"name":"encryptedMemo","type":"bytes","indexed":false},
    {"name":"timestamp","type":"uint256","indexed":false}
  ]},
  {"type":"event","name":"LeafInserted","anonymous":false,"inputs":[
    {"name":"leaf","type":"bytes32","indexed":true},
    {"name":"leafIndex","type":"uint256","indexed":true},
    {"name":"newRoot","type":"bytes32","indexed":false}
  ]},

  {"type":"function","name":"isKnownRoot","stateMutability":"view",
   "inputs":[{"name":"root","type":"bytes32"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"supportedTokens","stateMutability":"view",
   "inputs":[{"name":"token","type":"address"}],
   "outputs":[{"name":"","type":"bool"}]},

  {"type":"function","name":"unshieldNative","stateMutability":"nonpayable","inputs":[
    {"name":"proof","type":"bytes32[8]"},
    {"name":"root","type":"bytes32"},
    {"name":"nullifier","type":"bytes32"},
    {"name":"recipient","type":"address"},
    {"name":"amount","type":"uint256"},
    {"name":"changeCommitment","type":"bytes32"},
    {"name":"relayer","type":"address"},
    {"name":"fee","type":"uint256"}
  ],"outputs":[]},
  {"type":"function","name":"unshieldToken","stateMutability":"nonpayable","inputs":[
    {"name":"proof","type":"bytes32[8]"},
    {"name":"root","type":"bytes32"},
    {"name":"nullifier","type":"bytes32"},
    {"name":"recipient","type":"address"},
    {"name":"token","type":"address"},
    {"name":"amount","type":"uint256"},
    {"name":"changeCommitment","type":"bytes32"},
    {"name":"relayer","type":"address"},
    {"name":"fee","type":"uint256"}
  ],"outputs":[]},
  {"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[
    {"name":"proof","type":"bytes32[8]"},
    {"name":"root","type":"bytes32"},
    {"name":"nullifier","type":"bytes32"},
    {"name":"outCommit1","type":"bytes32"},
    {"name":"outCommit2","type":"bytes32"},
    {"name":"relayer","type":"address"},
    {"name":"fee","type":"uint256"},
    {"name":"memo1","type":"bytes"},
    {"name":"memo2","type":"bytes"}
  ],"outputs":[]},
  {"type":"function","name":"transferMulti","stateMutability":"nonpayable","inputs":[
    {"name":"proof","type":"bytes32[8]"},
    {"name":"roots","type":"bytes32[5]"},
    {"name":"nullifiers","type":"bytes32[5]"},
    {"name":"outCommit1","type":"bytes32"},
    {"name":"outCommit2","type":"bytes32"},
    {"name":"relayer","type":"address"},
    {"name":"fee","type":"uint256"},
    {"name":"numInputs","type":"uint8"},
    {"name":"memo1","type":"bytes"},
    {"name":"memo2","type":"bytes"}
  ],"outputs":[]},
  {"type":"function","name":"swap","stateMutability":"nonpayable","inputs":[
    {"name":"proof","type":"bytes32[8]"},
    {"name":"root","type":"bytes32"},
    {"name":"inputNullifier","type":"bytes32"},
    {"name":"outCommit1","type":"bytes32"},
    {"name":"outCommit2","type":"bytes32"},
    {"name":"tokenIn","type":"address"},
    {"name":"tokenOut","type":"address"},
    {"name":"swapAmount","type":"uint256"},
    {"name":"outputAmount","type":"uint256"},
    {"name":"minAmountOut","type":"uint256"},
    {"name":"encryptedMemo","type":"bytes"}
  ],"outputs":[]},
  {"type":"function","name":"batchTransfer","stateMutability":"nonpayable","inputs":[
    {"name":"proofs","type":"bytes32[8][]"},
    {"name":"roots","type":"bytes32[]"},
    {"name":"nullifiers","type":"bytes32[]"},
    {"name":"outCommit1","type":"bytes32"},
    {"name":"outCommit2","type":"bytes32"},
    {"name":"token","type":"address"},
    {"name":"relayer","type":"address"},
    {"name":"fee","type":"uint256"},
    {"name":"memo1","type":"bytes"},
    {"name":"memo2","type":"bytes"}
  ],"outputs":[]},
  {"type":"function","name":"batchUnshield","stateMutability":"nonpayable","inputs":[
    {"name":"proofs","type":"bytes32[8][]"},
    {"name":"roots","type":"bytes32[]"},
    {"name":"nullifiers","type":"bytes32[]"},
    {"name":"recipient","type":"address"},
    {"name":"token","type":"address"},
    {"name":"amounts","type":"uint256[]"},
    {"name":"changeCommitments","type":"bytes32[]"},
    {"name":"relayer","type":"address"},
    {"name":"totalFee","type":"uint256"}
  ],"outputs":[]},

  {"type":"error","name":"InvalidProof","inputs":[]},
  {"type":"error","name":"NullifierAlreadySpent","inputs":[]},
  {"type":"error","name":"InvalidAmount","inputs":[]},
  {"type":"error","name":"InvalidRecipient","inputs":[]},
  {"type":"error","name":"TransferFailed","inputs":[]},
  {"type":"error","name":"CommitmentAlreadyExists","inputs":[]},
  {"type":"error","name":"InsufficientPoolBalance","inputs":[]},
  {"type":"error","name":"UnsupportedToken","inputs":[]},
  {"type":"error","name":"Unauthorized","inputs":[]},
  {"type":"error","name":"InvalidSwapRate","inputs":[]}
]`
