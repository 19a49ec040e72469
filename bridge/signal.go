package bridge

import (
	"bytes"
	"encoding/base64"

	"github.com/pomelo-net/webrtc-plugin/errors"
	"github.com/pomelo-net/webrtc-plugin/host"
)

// Signaling sub-protocol: binary WebSocket frames carrying ASCII fields
// separated by '|'. Inbound payloads may carry one trailing NUL terminator;
// it is a convention of the wire format and is stripped before parsing.
const (
	messageSeparator = '|'

	opcodeAuth        = "AUTH"
	opcodeDescription = "DESC"
	opcodeCandidate   = "CAND"
	opcodeReady       = "READY"
	opcodeConnected   = "CONN"

	resultAuthOK     = "AUTH|OK"
	resultAuthFailed = "AUTH|FAILED"

	// Close reasons are reserved on the wire; none are emitted today.
	closeReasonInternalError  = "CLOSE|INTERNAL_ERROR"
	closeReasonPCFailed       = "CLOSE|PC_FAILED"
	closeReasonPCDisconnected = "CLOSE|PC_DISCONNECTED"
	closeReasonPCClosed       = "CLOSE|PC_CLOSED"
)

var (
	// Connect tokens travel URL-safe base64 encoded, padded or not.
	connectTokenBase64Len          = base64.URLEncoding.EncodedLen(host.ConnectTokenBytes)
	connectTokenBase64NoPaddingLen = base64.RawURLEncoding.EncodedLen(host.ConnectTokenBytes)

	errBadTokenLength = errors.New("bridge: connect token has invalid encoded length")
)

// trimTerminator strips a single trailing NUL from an inbound payload.
func trimTerminator(payload []byte) []byte {
	if n := len(payload); n > 0 && payload[n-1] == 0 {
		return payload[:n-1]
	}
	return payload
}

// frameOpcode splits a frame into its opcode and the rest after the
// separator. A frame without separator is all opcode.
func frameOpcode(frame []byte) (opcode, rest []byte) {
	if i := bytes.IndexByte(frame, messageSeparator); i >= 0 {
		return frame[:i], frame[i+1:]
	}
	return frame, nil
}

// splitField splits at the first separator: "a|b|c" → "a", "b|c".
func splitField(payload []byte) (field, rest []byte, ok bool) {
	i := bytes.IndexByte(payload, messageSeparator)
	if i < 0 {
		return nil, nil, false
	}
	return payload[:i], payload[i+1:], true
}

// decodeConnectToken decodes a URL-safe base64 connect token into its exact
// ConnectTokenBytes form.
func decodeConnectToken(encoded []byte) ([]byte, error) {
	var encoding *base64.Encoding
	switch len(encoded) {
	case connectTokenBase64Len:
		encoding = base64.URLEncoding
	case connectTokenBase64NoPaddingLen:
		encoding = base64.RawURLEncoding
	default:
		return nil, errBadTokenLength
	}

	token := make([]byte, encoding.DecodedLen(len(encoded)))
	n, err := encoding.Decode(token, encoded)
	if err != nil {
		return nil, errors.Wrap(err, "bridge: connect token is not valid base64")
	}
	if n != host.ConnectTokenBytes {
		return nil, errBadTokenLength
	}
	return token[:n], nil
}
