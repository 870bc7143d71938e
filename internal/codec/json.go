package codec

import (
	"encoding/json"
	"fmt"
)

// JSON encodes records as JSON objects. Values are base64 encoded.
type JSON struct{}

var _ Codec = JSON{}

func (JSON) Name() string { return FormatJSON }

func (JSON) Marshal(r *Record) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	return data, nil
}

func (JSON) Unmarshal(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &r, nil
}

func (JSON) MarshalString(s string) ([]byte, error) {
	return json.Marshal(s)
}

func (JSON) UnmarshalString(data []byte) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", fmt.Errorf("failed to unmarshal string: %w", err)
	}
	return s, nil
}

func (JSON) MarshalValue(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	return data, nil
}

func (JSON) UnmarshalValue(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return nil
}
