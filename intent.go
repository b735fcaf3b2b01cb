package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	errIntentEmptyPayload   = errors.New("empty intent payload")
	errIntentMissingVersion = errors.New("intent missing schema version")
)

// intentPayload is the JSON body of one client throttle intent.
type intentPayload struct {
	SchemaVersion string `json:"schema_version"`
	ControllerID  string `json:"controller_id"`
	SequenceID    uint64 `json:"sequence_id"`
	Throttle      int32  `json:"throttle"`
	SentAtMs      int64  `json:"sent_at_ms,omitempty"`
}

// decodeIntentPayload parses a websocket frame into a structured payload.
func decodeIntentPayload(raw []byte) (*intentPayload, error) {
	if len(raw) == 0 {
		return nil, errIntentEmptyPayload
	}
	var payload intentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// validateIntentPayload enforces required metadata on the payload. The
// throttle value itself is judged later by the input validator; the simulation
// accepts any integer.
func validateIntentPayload(payload *intentPayload) error {
	if payload == nil {
		return errors.New("intent payload is nil")
	}
	if payload.SchemaVersion == "" {
		return errIntentMissingVersion
	}
	if payload.SequenceID == 0 {
		return fmt.Errorf("intent sequence id must be positive: %d", payload.SequenceID)
	}
	return nil
}

// SentAt converts the optional capture timestamp into a time.Time instance.
func (payload *intentPayload) SentAt() time.Time {
	if payload == nil || payload.SentAtMs == 0 {
		return time.Time{}
	}
	return time.UnixMilli(payload.SentAtMs)
}
