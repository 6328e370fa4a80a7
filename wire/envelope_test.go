// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"errors"
	"testing"
	"time"
)

func TestParseValidEnvelope(t *testing.T) {
	raw := []byte(`{"id":"m1","namespace":"collaboration","event":"join-room",
		"data":{"roomId":"r1"},"timestamp":1767225600000,"roomId":"r1","ack":true}`)

	envelope, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if envelope.ID != "m1" || envelope.Namespace != NamespaceCollaboration || envelope.Event != "join-room" {
		t.Errorf("envelope = %+v", envelope)
	}
	if !envelope.Ack || envelope.RoomID != "r1" {
		t.Errorf("optional fields not decoded: %+v", envelope)
	}

	var request JoinRoomRequest
	if err := envelope.Decode(&request); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if request.RoomID != "r1" {
		t.Errorf("RoomID = %q, want r1", request.RoomID)
	}
}

func TestParseAcceptsUnknownEventName(t *testing.T) {
	raw := []byte(`{"id":"m1","namespace":"browser","event":"tab-navigate","data":{},"timestamp":1}`)
	envelope, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, known := ParseEvent(envelope.Event); known {
		t.Error("tab-navigate resolved to a vocabulary event")
	}
}

func TestParseRejections(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		field string
	}{
		{"not json", `{"id":`, ""},
		{"array", `[1,2]`, ""},
		{"missing id", `{"namespace":"qa","event":"ping","data":{},"timestamp":1}`, "id"},
		{"empty id", `{"id":"","namespace":"qa","event":"ping","data":{},"timestamp":1}`, "id"},
		{"numeric id", `{"id":7,"namespace":"qa","event":"ping","data":{},"timestamp":1}`, "id"},
		{"unknown namespace", `{"id":"a","namespace":"billing","event":"ping","data":{},"timestamp":1}`, "namespace"},
		{"missing event", `{"id":"a","namespace":"qa","data":{},"timestamp":1}`, "event"},
		{"missing data", `{"id":"a","namespace":"qa","event":"ping","timestamp":1}`, "data"},
		{"null data", `{"id":"a","namespace":"qa","event":"ping","data":null,"timestamp":1}`, "data"},
		{"string timestamp", `{"id":"a","namespace":"qa","event":"ping","data":{},"timestamp":"now"}`, "timestamp"},
		{"fractional timestamp", `{"id":"a","namespace":"qa","event":"ping","data":{},"timestamp":1.5}`, "timestamp"},
		{"numeric roomId", `{"id":"a","namespace":"qa","event":"ping","data":{},"timestamp":1,"roomId":3}`, "roomId"},
		{"string ack", `{"id":"a","namespace":"qa","event":"ping","data":{},"timestamp":1,"ack":"yes"}`, "ack"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse([]byte(test.raw))
			if !errors.Is(err, ErrMalformedEnvelope) {
				t.Fatalf("error = %v, want ErrMalformedEnvelope", err)
			}
			if test.field == "" {
				return
			}
			var fieldError *FieldError
			if !errors.As(err, &fieldError) {
				t.Fatalf("error %v is not a FieldError", err)
			}
			if fieldError.Field != test.field {
				t.Errorf("field = %q, want %q", fieldError.Field, test.field)
			}
		})
	}
}

func TestEventVocabularyIsComplete(t *testing.T) {
	for event := Event(0); event < EventCount; event++ {
		name := event.String()
		if name == "" {
			t.Errorf("event %d has no name", event)
			continue
		}
		parsed, ok := ParseEvent(name)
		if !ok || parsed != event {
			t.Errorf("ParseEvent(%q) = %v, %v", name, parsed, ok)
		}
	}
}

func TestNewRoundTrip(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	envelope, err := New(NamespaceCollaboration, EventAck, AckData{Ref: "m1"}, now)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	raw, err := envelope.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	parsed, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse(New()): %v", err)
	}
	var ack AckData
	if err := parsed.Decode(&ack); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ack.Ref != "m1" || parsed.Timestamp != now.UnixMilli() {
		t.Errorf("round trip lost data: %+v %+v", parsed, ack)
	}
}
