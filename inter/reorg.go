package inter

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// TxBlockPair places a transaction into the rebuilt block at Offset, counted
// from the first replaced block. On the wire it is a two element array.
type TxBlockPair struct {
	Tx     TransactionData
	Offset uint64
}

func (p *TxBlockPair) UnmarshalJSON(input []byte) error {
	var elems []json.RawMessage
	if err := json.Unmarshal(input, &elems); err != nil {
		return DecodeError("tx/block pair must be a [transaction, offset] array")
	}
	if len(elems) != 2 {
		return DecodeError("tx/block pair has %d elements, want 2", len(elems))
	}
	var tx TransactionData
	if err := json.Unmarshal(elems[0], &tx); err != nil {
		return err
	}
	offset, err := decodeUint64(elems[1])
	if err != nil {
		return DecodeError("invalid block offset %s", abbreviate(elems[1]))
	}
	*p = TxBlockPair{Tx: tx, Offset: offset}
	return nil
}

func (p TxBlockPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{p.Tx, p.Offset})
}

// decodeUint64 accepts both a JSON number and a hex quantity string.
func decodeUint64(raw json.RawMessage) (uint64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var q hexutil.Uint64
		if err := json.Unmarshal(raw, &q); err != nil {
			return 0, err
		}
		return uint64(q), nil
	}
	var n uint64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// ReorgOptions asks the node to replace the newest Depth blocks with blocks
// containing the given transactions.
type ReorgOptions struct {
	Depth        uint64
	TxBlockPairs []TxBlockPair
}

type reorgOptionsJSON struct {
	Depth        json.RawMessage `json:"depth"`
	TxBlockPairs []TxBlockPair   `json:"txBlockPairs"`
	SnakePairs   []TxBlockPair   `json:"tx_block_pairs"`
}

func (o *ReorgOptions) UnmarshalJSON(input []byte) error {
	var dec reorgOptionsJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		var e *Error
		if errors.As(err, &e) {
			return err
		}
		return DecodeError("invalid reorg options: %v", err)
	}
	if len(dec.Depth) == 0 {
		return DecodeError("reorg options miss depth")
	}
	depth, err := decodeUint64(dec.Depth)
	if err != nil {
		return DecodeError("invalid reorg depth %s", abbreviate(dec.Depth))
	}
	pairs := dec.TxBlockPairs
	if pairs == nil {
		pairs = dec.SnakePairs
	}
	*o = ReorgOptions{Depth: depth, TxBlockPairs: pairs}
	return nil
}

func (o ReorgOptions) MarshalJSON() ([]byte, error) {
	pairs := o.TxBlockPairs
	if pairs == nil {
		pairs = []TxBlockPair{}
	}
	return json.Marshal(struct {
		Depth        uint64        `json:"depth"`
		TxBlockPairs []TxBlockPair `json:"txBlockPairs"`
	}{o.Depth, pairs})
}
