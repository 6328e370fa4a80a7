// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// Code classifies an error envelope for clients.
type Code string

const (
	CodeMalformedEnvelope    Code = "MALFORMED_ENVELOPE"
	CodeAuthenticationFailed Code = "AUTHENTICATION_FAILED"
	CodeNotAuthenticated     Code = "NOT_AUTHENTICATED"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"
	CodeRoomFull             Code = "ROOM_FULL"
	CodeSessionFull          Code = "SESSION_FULL"
	CodePermissionDenied     Code = "PERMISSION_DENIED"
	CodeNotInRoom            Code = "NOT_IN_ROOM"
	CodeInvalidRequest       Code = "INVALID_REQUEST"
	CodeInternal             Code = "INTERNAL"
)

// ErrorData is the payload of an error envelope.
type ErrorData struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`

	// Ref is the id of the envelope that caused the error, when one
	// could be read.
	Ref string `json:"ref,omitempty"`

	// RetryAfterMs is set on rate limit errors.
	RetryAfterMs int64 `json:"retryAfterMs,omitempty"`
}

// AckData is the payload of an ack envelope.
type AckData struct {
	Ref string `json:"ref"`
}
