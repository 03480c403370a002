// Package codec implements the wire encoding of a payment authorization: the
// payload is serialized to canonical JSON and base64-encoded into a single
// opaque header value.
//
// Decoding is a total function.  Malformed client input is expected traffic,
// so every failure mode maps to a typed error rather than a panic.
package codec

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/coinbase/x402/go/pkg/types"
)

var (
	// ErrEmptyHeader is returned when the header value is empty.
	ErrEmptyHeader = errors.New("empty payment header")

	// ErrInvalidBase64 is returned when the header is not valid base64.
	ErrInvalidBase64 = errors.New("payment header is not valid base64")

	// ErrInvalidJSON is returned when the decoded bytes are not valid JSON.
	ErrInvalidJSON = errors.New("payment header is not valid JSON")

	// ErrMissingFields is returned when a required field of the payment
	// payload is absent.
	ErrMissingFields = errors.New("payment payload is missing required fields")
)

// Encode serializes the payment payload to JSON and base64-encodes it for
// transport in the X-Payment header.  Serialization is deterministic for a
// given structural input: struct fields marshal in declaration order.
func Encode(payload *types.PaymentPayload) (string, error) {
	if payload == nil {
		return "", ErrMissingFields
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment payload: %w", err)
	}

	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode parses a payment header value back into a payment payload.  Any
// malformed input yields one of the typed errors above; Decode never panics.
func Decode(header string) (*types.PaymentPayload, error) {
	if header == "" {
		return nil, ErrEmptyHeader
	}

	data, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBase64, err)
	}

	var payload types.PaymentPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}

	switch {
	case payload.Scheme == "":
		return nil, fmt.Errorf("%w: scheme", ErrMissingFields)
	case payload.Network == "":
		return nil, fmt.Errorf("%w: network", ErrMissingFields)
	case payload.Payload == nil || payload.Payload.Authorization == nil:
		return nil, fmt.Errorf("%w: payload.authorization", ErrMissingFields)
	}

	return &payload, nil
}
