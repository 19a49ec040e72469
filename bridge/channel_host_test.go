package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pomelo-net/webrtc-plugin/config"
	"github.com/pomelo-net/webrtc-plugin/rtt"
)

// receiveTestFixture wires a channel to a native session without a live
// transport, enough to drive the receive path end to end.
func receiveTestFixture(t *testing.T, mock *mockHost) (*Context, *Channel, *mockSession) {
	t.Helper()

	ctx, err := NewContext(mock, config.Default())
	require.NoError(t, err)
	t.Cleanup(ctx.Destroy)

	native := &mockSession{clientID: 7}
	s := &Session{
		ctx:           ctx,
		rtt:           rtt.NewCalculator(),
		flags:         sessionFlagActive,
		nativeSession: native,
	}
	s.ref.Init(func() {})

	c := &Channel{
		ctx:     ctx,
		session: s,
		index:   1,
		flags:   channelFlagActive | channelFlagDCActive | channelFlagDCReceiveEnabled,
	}
	c.ref.Init(func() {})
	return ctx, c, native
}

func TestReceiveDeliversToHost(t *testing.T) {
	mock := newMockHost()
	ctx, c, native := receiveTestFixture(t, mock)

	buffer := ctx.rtcContext.PrepareBufferFrom([]byte("payload-1"))
	done := make(chan struct{})
	ctx.submit(func() {
		c.receive(buffer)
		close(done)
	})
	<-done
	buffer.Unref()

	waitFor(t, "host delivery", func() bool {
		return len(native.receivedFrames()) == 1
	})
	assert.Equal(t, []byte("payload-1"), native.receivedFrames()[0])

	native.mu.Lock()
	channels := append([]int(nil), native.channels...)
	native.mu.Unlock()
	assert.Equal(t, []int{1}, channels)

	// The completion hop released the command back to its pool.
	waitFor(t, "command release", func() bool {
		return ctx.recvCommandPool.InUse() == 0
	})
	assert.Equal(t, int64(1), c.ref.Count(), "channel reference restored")
}

func TestReceiveDeliversInOrder(t *testing.T) {
	mock := newMockHost()
	mock.inlineExecutor = true
	ctx, c, native := receiveTestFixture(t, mock)

	// A serial executor preserves submission order, so reliable-channel
	// frames must arrive exactly once and in order.
	const n = 20
	done := make(chan struct{})
	ctx.submit(func() {
		for i := 0; i < n; i++ {
			buffer := ctx.rtcContext.PrepareBufferFrom([]byte{byte(i)})
			c.receive(buffer)
			buffer.Unref()
		}
		close(done)
	})
	<-done

	waitFor(t, "all deliveries", func() bool {
		return len(native.receivedFrames()) == n
	})

	// Reliable-channel contract: exactly once, in order.
	frames := native.receivedFrames()
	for i, frame := range frames {
		require.Len(t, frame, 1)
		assert.Equal(t, byte(i), frame[0])
	}
}

func TestReceiveDisabledGateDrops(t *testing.T) {
	mock := newMockHost()
	ctx, c, native := receiveTestFixture(t, mock)
	c.flags &^= channelFlagDCReceiveEnabled

	buffer := ctx.rtcContext.PrepareBufferFrom([]byte("dropped"))
	done := make(chan struct{})
	ctx.submit(func() {
		c.processMessage(buffer, nanotime())
		close(done)
	})
	<-done
	buffer.Unref()

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, native.receivedFrames())
}
