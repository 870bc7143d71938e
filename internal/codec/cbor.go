package codec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// CBOR encodes records as CBOR maps keyed by field name.
type CBOR struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec = (*CBOR)(nil)

func NewCBOR() *CBOR {
	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: invalid cbor encoding options: %v", err))
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: invalid cbor decoding options: %v", err))
	}
	return &CBOR{enc: enc, dec: dec}
}

func (c *CBOR) Name() string { return FormatCBOR }

func (c *CBOR) Marshal(r *Record) ([]byte, error) {
	data, err := c.enc.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	return data, nil
}

func (c *CBOR) Unmarshal(data []byte) (*Record, error) {
	var r Record
	if err := c.dec.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &r, nil
}

func (c *CBOR) MarshalString(s string) ([]byte, error) {
	return c.enc.Marshal(s)
}

func (c *CBOR) UnmarshalString(data []byte) (string, error) {
	var s string
	if err := c.dec.Unmarshal(data, &s); err != nil {
		return "", fmt.Errorf("failed to unmarshal string: %w", err)
	}
	return s, nil
}

func (c *CBOR) MarshalValue(v any) ([]byte, error) {
	data, err := c.enc.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	return data, nil
}

func (c *CBOR) UnmarshalValue(data []byte, v any) error {
	if err := c.dec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return nil
}
