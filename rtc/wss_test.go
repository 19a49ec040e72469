package rtc

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsEvents struct {
	mu       sync.Mutex
	accepted []*WSClient
	opened   int
	closed   int
	messages [][]byte
}

func newWSTestContext(events *wsEvents) *Context {
	return NewContext(Options{
		Callbacks: Callbacks{
			WSSClient: func(server *WSServer, client *WSClient) {
				events.mu.Lock()
				events.accepted = append(events.accepted, client)
				events.mu.Unlock()
			},
			WSOpen: func(client *WSClient) {
				events.mu.Lock()
				events.opened++
				events.mu.Unlock()
			},
			WSClosed: func(client *WSClient) {
				events.mu.Lock()
				events.closed++
				events.mu.Unlock()
			},
			WSMessage: func(client *WSClient, message *Buffer) {
				payload := make([]byte, message.Size())
				copy(payload, message.Data())
				events.mu.Lock()
				events.messages = append(events.messages, payload)
				events.mu.Unlock()
			},
		},
	})
}

func dialServer(t *testing.T, s *WSServer) *websocket.Conn {
	t.Helper()
	url := fmt.Sprintf("ws://%s/", s.Addr().String())
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never satisfied")
}

func TestWSServerAcceptAndMessage(t *testing.T) {
	events := &wsEvents{}
	ctx := newWSTestContext(events)

	server, err := NewWSServer(WSServerOptions{Context: ctx, Port: 0})
	require.NoError(t, err)
	defer server.Close()

	conn := dialServer(t, server)
	defer conn.Close()

	waitFor(t, func() bool {
		events.mu.Lock()
		defer events.mu.Unlock()
		return len(events.accepted) == 1 && events.opened == 1
	})

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("AUTH|x")))
	waitFor(t, func() bool {
		events.mu.Lock()
		defer events.mu.Unlock()
		return len(events.messages) == 1
	})

	events.mu.Lock()
	assert.Equal(t, []byte("AUTH|x"), events.messages[0])
	events.mu.Unlock()
}

func TestWSClientSendAndClose(t *testing.T) {
	events := &wsEvents{}
	ctx := newWSTestContext(events)

	server, err := NewWSServer(WSServerOptions{Context: ctx, Port: 0})
	require.NoError(t, err)
	defer server.Close()

	conn := dialServer(t, server)
	defer conn.Close()

	waitFor(t, func() bool {
		events.mu.Lock()
		defer events.mu.Unlock()
		return len(events.accepted) == 1
	})
	events.mu.Lock()
	client := events.accepted[0]
	events.mu.Unlock()

	require.NoError(t, client.Send([]byte("CONN")))
	messageType, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, messageType)
	assert.Equal(t, []byte("CONN"), payload)

	client.Close()
	waitFor(t, func() bool {
		events.mu.Lock()
		defer events.mu.Unlock()
		return events.closed == 1
	})
}

func TestWSServerCloseBlocksUntilDrained(t *testing.T) {
	events := &wsEvents{}
	ctx := newWSTestContext(events)

	server, err := NewWSServer(WSServerOptions{Context: ctx, Port: 0})
	require.NoError(t, err)

	conn := dialServer(t, server)
	defer conn.Close()
	waitFor(t, func() bool {
		events.mu.Lock()
		defer events.mu.Unlock()
		return len(events.accepted) == 1
	})

	server.Close()

	events.mu.Lock()
	closed := events.closed
	events.mu.Unlock()
	assert.Equal(t, 1, closed, "client pumps exited before Close returned")

	// Idempotent.
	server.Close()
}

func TestWSClientDataRoundTrip(t *testing.T) {
	events := &wsEvents{}
	ctx := newWSTestContext(events)

	server, err := NewWSServer(WSServerOptions{Context: ctx, Port: 0, Data: "socket"})
	require.NoError(t, err)
	defer server.Close()
	assert.Equal(t, "socket", server.Data())

	conn := dialServer(t, server)
	defer conn.Close()
	waitFor(t, func() bool {
		events.mu.Lock()
		defer events.mu.Unlock()
		return len(events.accepted) == 1
	})

	events.mu.Lock()
	client := events.accepted[0]
	events.mu.Unlock()

	assert.Nil(t, client.Data())
	client.SetData("session")
	assert.Equal(t, "session", client.Data())
	assert.True(t, client.RemoteAddr().IsValid())
}
