package storage

import (
	"encoding/json"
	"fmt"
)

// marshalJSON encodes a value into the TEXT column representation used
// for slice-valued fields. Nil slices encode as empty JSON arrays so the
// columns never hold NULL.
func marshalJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal value: %w", err)
	}
	return string(data), nil
}

func unmarshalStrings(data string) ([]string, error) {
	if data == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal string list: %w", err)
	}
	return out, nil
}

func unmarshalFloats(data string) ([]float64, error) {
	if data == "" {
		return nil, nil
	}
	var out []float64
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal number list: %w", err)
	}
	return out, nil
}
