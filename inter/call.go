package inter

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// BlockOverrides replaces fields of the block context a bundle executes in.
// Nil fields keep the value of the base block.
type BlockOverrides struct {
	Number     *hexutil.Big           `json:"number,omitempty"`
	Difficulty *hexutil.Big           `json:"difficulty,omitempty"`
	Time       *hexutil.Uint64        `json:"time,omitempty"`
	GasLimit   *hexutil.Uint64        `json:"gasLimit,omitempty"`
	Coinbase   *common.Address        `json:"coinbase,omitempty"`
	BaseFee    *hexutil.Big           `json:"baseFee,omitempty"`
	BlockHash  map[uint64]common.Hash `json:"blockHash,omitempty"`
}

// CallBundle is an ordered list of calls sharing one state.
type CallBundle struct {
	Transactions  []TransactionRequest `json:"transactions"`
	BlockOverride *BlockOverrides      `json:"blockOverride,omitempty"`
}

// AllTransactions positions a call context after every transaction of its block.
const AllTransactions = -1

// TransactionIndex selects how many transactions of the base block are
// applied before a bundle runs. The zero value starts at the beginning of
// the block.
type TransactionIndex int

func (i *TransactionIndex) UnmarshalJSON(input []byte) error {
	if string(input) == "null" {
		*i = 0
		return nil
	}
	var n int64
	if err := json.Unmarshal(input, &n); err == nil {
		if n < AllTransactions {
			return DecodeError("transaction index %d out of range", n)
		}
		*i = TransactionIndex(n)
		return nil
	}
	q, err := decodeUint64(input)
	if err != nil {
		return DecodeError("invalid transaction index %s", abbreviate(input))
	}
	*i = TransactionIndex(q)
	return nil
}

// CallContext positions a bundle inside a block. A nil BlockNumber means the
// latest block; an omitted transactionIndex means index 0, the state before
// the first transaction of the block.
type CallContext struct {
	BlockNumber      *rpc.BlockNumberOrHash `json:"blockNumber,omitempty"`
	TransactionIndex TransactionIndex       `json:"transactionIndex"`
}

// Block returns the selected block, defaulting to the latest one.
func (c *CallContext) Block() rpc.BlockNumberOrHash {
	if c == nil || c.BlockNumber == nil {
		return rpc.BlockNumberOrHashWithNumber(rpc.LatestBlockNumber)
	}
	return *c.BlockNumber
}

// CallTrace is the outcome of one call of a bundle. A reverted call is not an
// error of the bundle: it is reported here with Failed set.
type CallTrace struct {
	Gas         hexutil.Uint64 `json:"gas"`
	Failed      bool           `json:"failed"`
	ReturnValue hexutil.Bytes  `json:"returnValue"`
	Error       string         `json:"error,omitempty"`
	Logs        []*types.Log   `json:"logs"`
}

// ToBig returns a copy of a hexutil.Big or nil.
func ToBig(v *hexutil.Big) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v.ToInt())
}
