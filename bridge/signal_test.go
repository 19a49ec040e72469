package bridge

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pomelo-net/webrtc-plugin/host"
)

func validTokenEncoded(padded bool) []byte {
	token := make([]byte, host.ConnectTokenBytes)
	for i := range token {
		token[i] = byte(i)
	}
	if padded {
		return []byte(base64.URLEncoding.EncodeToString(token))
	}
	return []byte(base64.RawURLEncoding.EncodeToString(token))
}

func TestTokenEncodedLengths(t *testing.T) {
	// 2048 bytes encode to 2732 characters padded, 2731 unpadded.
	assert.Equal(t, 2732, connectTokenBase64Len)
	assert.Equal(t, 2731, connectTokenBase64NoPaddingLen)
}

func TestDecodeConnectTokenPadded(t *testing.T) {
	token, err := decodeConnectToken(validTokenEncoded(true))
	require.NoError(t, err)
	assert.Len(t, token, host.ConnectTokenBytes)
	assert.Equal(t, byte(0), token[0])
	assert.Equal(t, byte(255), token[255])
}

func TestDecodeConnectTokenUnpadded(t *testing.T) {
	token, err := decodeConnectToken(validTokenEncoded(false))
	require.NoError(t, err)
	assert.Len(t, token, host.ConnectTokenBytes)
}

func TestDecodeConnectTokenBadLength(t *testing.T) {
	_, err := decodeConnectToken([]byte("AAAA"))
	assert.ErrorIs(t, err, errBadTokenLength)

	long := bytes.Repeat([]byte("A"), 4000)
	_, err = decodeConnectToken(long)
	assert.ErrorIs(t, err, errBadTokenLength)
}

func TestDecodeConnectTokenBadBase64(t *testing.T) {
	encoded := validTokenEncoded(true)
	encoded[10] = '!'
	_, err := decodeConnectToken(encoded)
	assert.Error(t, err)
}

func TestTrimTerminator(t *testing.T) {
	assert.Equal(t, []byte("READY"), trimTerminator([]byte("READY\x00")))
	assert.Equal(t, []byte("READY"), trimTerminator([]byte("READY")))
	assert.Empty(t, trimTerminator([]byte{0}))
	assert.Empty(t, trimTerminator(nil))
	// Only one terminator is stripped.
	assert.Equal(t, []byte("X\x00"), trimTerminator([]byte("X\x00\x00")))
}

func TestFrameOpcode(t *testing.T) {
	opcode, rest := frameOpcode([]byte("DESC|offer|v=0"))
	assert.Equal(t, []byte("DESC"), opcode)
	assert.Equal(t, []byte("offer|v=0"), rest)

	opcode, rest = frameOpcode([]byte("READY"))
	assert.Equal(t, []byte("READY"), opcode)
	assert.Nil(t, rest)
}

func TestSplitField(t *testing.T) {
	field, rest, ok := splitField([]byte("offer|v=0|extra"))
	require.True(t, ok)
	assert.Equal(t, []byte("offer"), field)
	assert.Equal(t, []byte("v=0|extra"), rest)

	_, _, ok = splitField([]byte("no-separator"))
	assert.False(t, ok)
}

func TestCloseReasonConstantsPreserved(t *testing.T) {
	// Reserved on the wire; no emission sites exist today.
	assert.Equal(t, "CLOSE|INTERNAL_ERROR", closeReasonInternalError)
	assert.Equal(t, "CLOSE|PC_FAILED", closeReasonPCFailed)
	assert.Equal(t, "CLOSE|PC_DISCONNECTED", closeReasonPCDisconnected)
	assert.Equal(t, "CLOSE|PC_CLOSED", closeReasonPCClosed)
}
