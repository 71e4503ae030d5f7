package commsutil

import (
	"encoding/json"
	"fmt"

	"github.com/morezero/domain-controller/pkg/model"
)

// EncodePayload serializes a value to JSON bytes.
func EncodePayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes JSON bytes into the given target.
func DecodePayload(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// DecodeNode decodes a JSON object into a model node. Non-object payloads are rejected.
func DecodeNode(data []byte) (model.Node, error) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	node, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("commsutil:codec - expected a JSON object, got %T", raw)
	}
	return node, nil
}
