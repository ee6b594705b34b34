// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package protocol implements the wire codec for keydb's RESP-compatible
// request/response protocol.
package protocol

import "errors"

// ErrIncomplete signals that the buffered prefix does not yet contain a
// whole frame. It is never surfaced to a client; callers read more bytes
// and retry.
var ErrIncomplete = errors.New("protocol: incomplete frame")

// ErrEndOfStream signals that an argument parser ran out of array
// elements before a caller asked for one. Distinct from a malformed
// frame: the frame itself was well-formed, just shorter than expected.
var ErrEndOfStream = errors.New("protocol: end of argument stream")

// ProtocolError reports malformed bytes on the wire: a frame whose tag
// byte, length prefix, or terminator does not match the grammar. The
// connection owning the stream must be closed with no reply.
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string { return "protocol: " + e.Msg }

// NewProtocolError builds a ProtocolError with the given message.
func NewProtocolError(msg string) error {
	return &ProtocolError{Msg: msg}
}

// IsProtocolError reports whether err is a malformed-frame error
// (including ErrEndOfStream, which carries the same "close the
// connection" policy).
func IsProtocolError(err error) bool {
	if errors.Is(err, ErrEndOfStream) {
		return true
	}
	var pe *ProtocolError
	return errors.As(err, &pe)
}
