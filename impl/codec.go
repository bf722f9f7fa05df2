package impl

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/encodeous/nowmesh/state"
)

// Frame wire format, fields separated by a comma:
//
//	1:     [1-2]     frame kind, 1 = broadcast, 2 = targeted
//	2-7:   [0-255]   originator hardware address, one octet per field
//	8-13:  [0-255]   target hardware address, all zero for broadcast
//	14:    [0-65535] message id, incremented by the originator per send
//	15:    ^[,]*     payload, anything without a comma, as long as the whole
//	                 frame fits within the configured maximum length
const frameFieldCount = 15

const frameSeparator = ','

var ErrMalformedFrame = errors.New("malformed frame")

// EncodeFrame serializes f. The payload is not checked for separator bytes;
// keeping it separator-free is the caller's contract.
func EncodeFrame(f state.Frame) []byte {
	out := make([]byte, 0, 32+len(f.Payload))
	out = strconv.AppendUint(out, uint64(f.Kind), 10)
	for _, b := range f.Originator {
		out = append(out, frameSeparator)
		out = strconv.AppendUint(out, uint64(b), 10)
	}
	for _, b := range f.Target {
		out = append(out, frameSeparator)
		out = strconv.AppendUint(out, uint64(b), 10)
	}
	out = append(out, frameSeparator)
	out = strconv.AppendUint(out, uint64(f.Id), 10)
	out = append(out, frameSeparator)
	out = append(out, f.Payload...)
	return out
}

// DecodeFrame parses raw into a Frame. It fails only on an oversize frame or a
// wrong field count; numeric fields are parsed leniently, with non-numeric
// tokens decoding to zero. A comma inside the payload shows up as an extra
// field and rejects the whole frame.
func DecodeFrame(raw []byte, maxLen int) (state.Frame, error) {
	var f state.Frame
	if len(raw) > maxLen {
		return f, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrMalformedFrame, len(raw), maxLen)
	}
	tokens := bytes.Split(raw, []byte{frameSeparator})
	if len(tokens) != frameFieldCount {
		return f, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformedFrame, frameFieldCount, len(tokens))
	}
	f.Kind = state.FrameKind(parseUint(tokens[0], 8))
	for i := range 6 {
		f.Originator[i] = byte(parseUint(tokens[1+i], 8))
	}
	for i := range 6 {
		f.Target[i] = byte(parseUint(tokens[7+i], 8))
	}
	f.Id = uint16(parseUint(tokens[13], 16))
	f.Payload = bytes.Clone(tokens[14])
	return f, nil
}

// parseUint decodes a numeric token, defaulting to zero on anything that does
// not parse. The zero-default is deliberate: it preserves the tolerant contract
// of the deployed frame format, where a garbled digit degrades a field instead
// of rejecting the frame.
func parseUint(token []byte, bits int) uint64 {
	v, err := strconv.ParseUint(string(token), 10, bits)
	if err != nil {
		return 0
	}
	return v
}
