package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownFrameType is returned when a decoded frame's "type" has no
// registered schema (spec.md §4.7: "Unknown type -> Error{unknown frame}
// and the frame is discarded").
var ErrUnknownFrameType = errors.New("protocol: unknown frame type")

// ErrMissingField is returned when a frame fails its required-field
// schema validation (spec.md §4.7: "Missing required fields -> the codec
// fails the whole frame; the transport logs and skips").
var ErrMissingField = errors.New("protocol: missing required field")

// PeekType extracts the "type" discriminator from a raw frame without
// fully decoding it, so the transport can route before validating.
func PeekType(raw []byte) (string, error) {
	var head struct {
		Type string `json:"type"`
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&head); err != nil {
		return "", fmt.Errorf("protocol: malformed json: %w", err)
	}
	if head.Type == "" {
		return "", ErrMissingField
	}
	return head.Type, nil
}

// Decode validates raw against the schema for its declared type and
// unmarshals it into out. Returns ErrUnknownFrameType for an
// unrecognised type, or a wrapped ErrMissingField-class error for a
// frame that fails schema validation.
func Decode(raw []byte, out any) (string, error) {
	frameType, err := PeekType(raw)
	if err != nil {
		return "", err
	}

	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return frameType, fmt.Errorf("protocol: malformed json: %w", err)
	}
	if err := Validate(frameType, generic); err != nil {
		if errors.Is(err, ErrUnknownFrameType) {
			return frameType, err
		}
		return frameType, fmt.Errorf("%w: %v", ErrMissingField, err)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return frameType, fmt.Errorf("protocol: decode into target: %w", err)
		}
	}
	return frameType, nil
}

// Encode marshals a gateway->client frame for transmission.
func Encode(frame any) ([]byte, error) {
	return json.Marshal(frame)
}
