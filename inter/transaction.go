package inter

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// TransactionRequest is an unsigned transaction description. Missing fields are
// completed by the node before execution. Fields the node does not recognise
// are kept in Other and written back unchanged when the request is encoded.
type TransactionRequest struct {
	From                 *common.Address   `json:"from,omitempty"`
	To                   *common.Address   `json:"to,omitempty"`
	Gas                  *hexutil.Uint64   `json:"gas,omitempty"`
	GasPrice             *hexutil.Big      `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big      `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big      `json:"maxPriorityFeePerGas,omitempty"`
	Value                *hexutil.Big      `json:"value,omitempty"`
	Nonce                *hexutil.Uint64   `json:"nonce,omitempty"`
	Data                 *hexutil.Bytes    `json:"data,omitempty"`
	Input                *hexutil.Bytes    `json:"input,omitempty"`
	AccessList           *types.AccessList `json:"accessList,omitempty"`
	ChainID              *hexutil.Big      `json:"chainId,omitempty"`
	Type                 *hexutil.Uint64   `json:"type,omitempty"`

	Other map[string]json.RawMessage `json:"-"`
}

var requestFields = []string{
	"from", "to", "gas", "gasPrice", "maxFeePerGas", "maxPriorityFeePerGas", "value",
	"nonce", "data", "input", "accessList", "chainId", "type",
}

func isRequestField(name string) bool {
	for _, f := range requestFields {
		// encoding/json matches field names case-insensitively
		if strings.EqualFold(f, name) {
			return true
		}
	}
	return false
}

// UnmarshalJSON decodes the known fields and keeps every other field verbatim.
func (r *TransactionRequest) UnmarshalJSON(input []byte) error {
	type request TransactionRequest
	var dec request
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(input, &fields); err != nil {
		return err
	}
	for name, raw := range fields {
		if isRequestField(name) {
			continue
		}
		if dec.Other == nil {
			dec.Other = make(map[string]json.RawMessage)
		}
		dec.Other[name] = raw
	}
	*r = TransactionRequest(dec)
	return nil
}

// MarshalJSON encodes the known fields followed by the preserved ones.
// A preserved field never overrides a known one.
func (r TransactionRequest) MarshalJSON() ([]byte, error) {
	type request TransactionRequest
	known, err := json.Marshal(request(r))
	if err != nil {
		return nil, err
	}
	if len(r.Other) == 0 {
		return known, nil
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(known, &out); err != nil {
		return nil, err
	}
	for name, raw := range r.Other {
		if _, ok := out[name]; ok || isRequestField(name) {
			continue
		}
		out[name] = raw
	}
	return json.Marshal(out)
}

// Calldata returns the input of the request, preferring "input" over "data".
func (r *TransactionRequest) Calldata() []byte {
	if r.Input != nil {
		return *r.Input
	}
	if r.Data != nil {
		return *r.Data
	}
	return nil
}

// TransactionData is either a structured request the node signs itself or an
// already signed transaction in its binary encoding. Exactly one of Request
// and Raw is set.
type TransactionData struct {
	Request *TransactionRequest
	Raw     hexutil.Bytes
}

// IsRaw reports whether the descriptor holds signed transaction bytes.
func (d *TransactionData) IsRaw() bool {
	return d.Request == nil
}

// UnmarshalJSON tries the structured shape first and falls back to a hex
// string of raw transaction bytes.
func (d *TransactionData) UnmarshalJSON(input []byte) error {
	trimmed := bytes.TrimSpace(input)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return DecodeError("transaction is neither a request object nor raw bytes")
	}
	if trimmed[0] == '{' {
		var req TransactionRequest
		if err := json.Unmarshal(trimmed, &req); err == nil {
			*d = TransactionData{Request: &req}
			return nil
		}
	}
	var raw hexutil.Bytes
	if err := json.Unmarshal(trimmed, &raw); err == nil {
		*d = TransactionData{Raw: raw}
		return nil
	}
	return DecodeError("transaction is neither a request object nor raw bytes: %s", abbreviate(trimmed))
}

func (d TransactionData) MarshalJSON() ([]byte, error) {
	if d.Request != nil {
		return json.Marshal(d.Request)
	}
	return json.Marshal(d.Raw)
}

func abbreviate(b []byte) string {
	const max = 64
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
