package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pomelo-net/webrtc-plugin/host"
	"github.com/pomelo-net/webrtc-plugin/rtc"
)

func TestParseClientChannelLabel(t *testing.T) {
	cases := []struct {
		label string
		index int
		valid bool
	}{
		{"client-channel-0", 0, true},
		{"client-channel-7", 7, true},
		{"client-channel-1023", 1023, true},
		{"system", systemChannelIndex, true},
		{"client-channel-", 0, false},
		{"client-channel-x", 0, false},
		{"client-channel--1", 0, false},
		{"server-channel-0", 0, false},
		{"random", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		index, valid := parseClientChannelLabel(c.label)
		assert.Equal(t, c.valid, valid, "label=%q", c.label)
		if c.valid {
			assert.Equal(t, c.index, index, "label=%q", c.label)
		}
	}
}

func TestOutgoingLabel(t *testing.T) {
	assert.Equal(t, "server-channel-0", outgoingLabel(0))
	assert.Equal(t, "server-channel-42", outgoingLabel(42))
	assert.Equal(t, "system", outgoingLabel(systemChannelIndex))
}

func TestReliabilityMapping(t *testing.T) {
	unreliable := reliabilityFor(host.ModeUnreliable)
	assert.True(t, unreliable.Unreliable)
	assert.True(t, unreliable.Unordered)

	sequenced := reliabilityFor(host.ModeSequenced)
	assert.True(t, sequenced.Unreliable)
	assert.False(t, sequenced.Unordered)

	reliable := reliabilityFor(host.ModeReliable)
	assert.False(t, reliable.Unreliable)
	assert.False(t, reliable.Unordered)
}

func TestSetIncomingDataChannelOnce(t *testing.T) {
	rtcCtx := rtc.NewContext(rtc.Options{})
	pc, err := rtc.NewPeerConnection(rtc.PeerConnectionOptions{Context: rtcCtx})
	assert.NoError(t, err)
	defer pc.Close()

	first, err := pc.CreateDataChannel("client-channel-0", rtc.DataChannelReliability{}, nil)
	assert.NoError(t, err)
	second, err := pc.CreateDataChannel("client-channel-0x", rtc.DataChannelReliability{}, nil)
	assert.NoError(t, err)

	c := &Channel{index: 0}
	c.setIncomingDataChannel(first)
	assert.Same(t, c, first.Data())

	// A duplicate incoming channel for the slot is ignored.
	c.setIncomingDataChannel(second)
	assert.Equal(t, first, c.incomingDC)
	assert.Nil(t, second.Data())
}
