// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Envelope is the frame exchanged with clients.
type Envelope struct {
	ID        string          `json:"id"`
	Namespace Namespace       `json:"namespace"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
	UserID    string          `json:"userId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	RoomID    string          `json:"roomId,omitempty"`
	Ack       bool            `json:"ack,omitempty"`
}

// ErrMalformedEnvelope wraps every schema violation Parse reports.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// FieldError names the field that failed validation.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: field %q %s", ErrMalformedEnvelope, e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrMalformedEnvelope }

// Parse validates raw against the envelope schema and decodes it.
//
// Required: id (non-empty string), namespace (known namespace), event
// (non-empty string), data (any non-null JSON value), timestamp
// (integer epoch milliseconds). Optional: userId, sessionId, roomId
// (strings) and ack (boolean).
func Parse(raw []byte) (Envelope, error) {
	if !gjson.ValidBytes(raw) {
		return Envelope{}, fmt.Errorf("%w: not valid JSON", ErrMalformedEnvelope)
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return Envelope{}, fmt.Errorf("%w: not a JSON object", ErrMalformedEnvelope)
	}

	if err := requireString(root, "id"); err != nil {
		return Envelope{}, err
	}
	if err := requireString(root, "namespace"); err != nil {
		return Envelope{}, err
	}
	if !Namespace(root.Get("namespace").String()).Valid() {
		return Envelope{}, &FieldError{Field: "namespace", Reason: "is not a known namespace"}
	}
	if err := requireString(root, "event"); err != nil {
		return Envelope{}, err
	}

	data := root.Get("data")
	if !data.Exists() || data.Type == gjson.Null {
		return Envelope{}, &FieldError{Field: "data", Reason: "is required"}
	}

	timestamp := root.Get("timestamp")
	if timestamp.Type != gjson.Number {
		return Envelope{}, &FieldError{Field: "timestamp", Reason: "must be a number"}
	}
	if timestamp.Num != math.Trunc(timestamp.Num) || timestamp.Num < 0 {
		return Envelope{}, &FieldError{Field: "timestamp", Reason: "must be a non-negative integer"}
	}

	for _, optional := range []string{"userId", "sessionId", "roomId"} {
		value := root.Get(optional)
		if value.Exists() && value.Type != gjson.String && value.Type != gjson.Null {
			return Envelope{}, &FieldError{Field: optional, Reason: "must be a string"}
		}
	}
	if ack := root.Get("ack"); ack.Exists() && ack.Type != gjson.True && ack.Type != gjson.False && ack.Type != gjson.Null {
		return Envelope{}, &FieldError{Field: "ack", Reason: "must be a boolean"}
	}

	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return envelope, nil
}

func requireString(root gjson.Result, name string) error {
	value := root.Get(name)
	if !value.Exists() {
		return &FieldError{Field: name, Reason: "is required"}
	}
	if value.Type != gjson.String {
		return &FieldError{Field: name, Reason: "must be a string"}
	}
	if value.Str == "" {
		return &FieldError{Field: name, Reason: "must not be empty"}
	}
	return nil
}

// New builds a server-originated envelope with a fresh id.
func New(namespace Namespace, event Event, data any, now time.Time) (Envelope, error) {
	return NewNamed(namespace, event.String(), data, now)
}

// NewNamed is New for event names outside the closed vocabulary, such
// as replies from namespace handlers.
func NewNamed(namespace Namespace, event string, data any, now time.Time) (Envelope, error) {
	encoded, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding %s payload: %w", event, err)
	}
	return Envelope{
		ID:        uuid.NewString(),
		Namespace: namespace,
		Event:     event,
		Data:      encoded,
		Timestamp: now.UnixMilli(),
	}, nil
}

// Decode unmarshals the envelope's data into target.
func (e Envelope) Decode(target any) error {
	if err := json.Unmarshal(e.Data, target); err != nil {
		return fmt.Errorf("decoding %s payload: %w", e.Event, err)
	}
	return nil
}

// Marshal encodes the envelope for the wire.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
