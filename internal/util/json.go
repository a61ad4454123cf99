package util

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON marshals a value to JSON and returns the bytes and any error.
//
// Example:
//
//	data, err := util.MarshalJSON(payload)
//	if err != nil {
//	    return fmt.Errorf("failed to marshal payload: %w", err)
//	}
func MarshalJSON(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("JSON marshal error: %w", err)
	}
	return data, nil
}

// UnmarshalJSON unmarshals JSON bytes into a value with consistent error wrapping.
func UnmarshalJSON(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("JSON unmarshal error: %w", err)
	}
	return nil
}
