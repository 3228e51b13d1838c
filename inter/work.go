package inter

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Work describes the next block to mine: the seal hash to solve, the seed of
// the dataset epoch and the boundary a solution must not exceed. Number is
// the pending block number and is nil when the issuer does not commit to one.
//
// On the wire Work is a three element array, or four elements when Number is
// set, matching the eth_getWork result shape.
type Work struct {
	PowHash  common.Hash
	SeedHash common.Hash
	Target   common.Hash
	Number   *big.Int
}

func (w Work) MarshalJSON() ([]byte, error) {
	if w.Number != nil {
		return json.Marshal([4]string{
			w.PowHash.Hex(),
			w.SeedHash.Hex(),
			w.Target.Hex(),
			hexutil.EncodeBig(w.Number),
		})
	}
	return json.Marshal([3]string{w.PowHash.Hex(), w.SeedHash.Hex(), w.Target.Hex()})
}

func (w *Work) UnmarshalJSON(input []byte) error {
	var elems []string
	if err := json.Unmarshal(input, &elems); err != nil {
		return DecodeError("work must be an array of hex strings")
	}
	if len(elems) != 3 && len(elems) != 4 {
		return DecodeError("work has %d elements, want 3 or 4", len(elems))
	}
	var dec Work
	for i, dst := range []*common.Hash{&dec.PowHash, &dec.SeedHash, &dec.Target} {
		b, err := hexutil.Decode(elems[i])
		if err != nil || len(b) != common.HashLength {
			return DecodeError("work element %d is not a 32 byte hash: %q", i, elems[i])
		}
		*dst = common.BytesToHash(b)
	}
	if len(elems) == 4 {
		n, err := hexutil.DecodeBig(elems[3])
		if err != nil {
			return DecodeError("work number %q: %v", elems[3], err)
		}
		dec.Number = n
	}
	*w = dec
	return nil
}
