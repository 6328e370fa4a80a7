// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import "fmt"

// FrameKind selects the channel a frame travels on.
type FrameKind uint8

const (
	// KindRoomBroadcast mirrors an envelope sent to a room.
	KindRoomBroadcast FrameKind = iota + 1
	// KindRoomJoin announces a user joining a room on the origin.
	KindRoomJoin
	// KindRoomLeave announces a user leaving a room on the origin.
	KindRoomLeave
	// KindGlobalBroadcast mirrors an envelope sent to a namespace.
	KindGlobalBroadcast
)

var frameKindChannels = map[FrameKind]string{
	KindRoomBroadcast:   "room-broadcast",
	KindRoomJoin:        "room-join",
	KindRoomLeave:       "room-leave",
	KindGlobalBroadcast: "global-broadcast",
}

func (k FrameKind) String() string {
	if name, ok := frameKindChannels[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", k)
}

// Frame is the unit exchanged between processes.
type Frame struct {
	// Origin identifies the publishing process. A relay ignores its
	// own frames.
	Origin string    `cbor:"1,keyasint"`
	Kind   FrameKind `cbor:"2,keyasint"`

	RoomID    string `cbor:"3,keyasint,omitempty"`
	Namespace string `cbor:"4,keyasint,omitempty"`

	// UserID and Username describe the member of a join or leave.
	UserID   string `cbor:"5,keyasint,omitempty"`
	Username string `cbor:"6,keyasint,omitempty"`

	// Payload is an encoded envelope. On the wire it may be
	// compressed; Size is its uncompressed length. Frames handed to a
	// relay's callback are always decompressed.
	Compression Compression `cbor:"7,keyasint,omitempty"`
	Size        int         `cbor:"8,keyasint,omitempty"`
	Payload     []byte      `cbor:"9,keyasint,omitempty"`
}
