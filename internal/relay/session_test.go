package relay

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeTransport is an in-memory Transport: the test writes inbound frames
// into in and reads what the bridge encoded from out.
type fakeTransport struct {
	in        chan []byte
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) ReadFrame() ([]byte, error) {
	select {
	case data, ok := <-f.in:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	case <-f.closed:
		return nil, net.ErrClosed
	}
}

func (f *fakeTransport) WriteFrame(data []byte) error {
	select {
	case f.out <- data:
		return nil
	case <-f.closed:
		return net.ErrClosed
	}
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) peerClose() {
	close(f.in)
}

func recvFrame(t *testing.T, transport *fakeTransport) OutboundEvent {
	t.Helper()
	select {
	case data := <-transport.out:
		var event OutboundEvent
		require.NoError(t, json.Unmarshal(data, &event))
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return OutboundEvent{}
	}
}

func encodeFrame(t *testing.T, msg *ChatMessage) []byte {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return data
}

func TestBridgeForwardsInboundFrames(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(ctx)
	alice, err := registry.GetOrInsert(ctx, "alice")
	require.NoError(t, err)
	bob, err := registry.GetOrInsert(ctx, "bob")
	require.NoError(t, err)

	transport := newFakeTransport()
	_, err = NewSession(ctx, transport, alice)
	require.NoError(t, err)

	sibling, siblingEvents := newTestSession()
	require.NoError(t, alice.AddSession(ctx, sibling))

	bobSession, bobEvents := newTestSession()
	require.NoError(t, bob.AddSession(ctx, bobSession))

	transport.in <- encodeFrame(t, &ChatMessage{
		Recipient: "bob",
		Sender:    "alice",
		Text:      "hi",
		Time:      MillisTime(time.UnixMilli(1715938212345).UTC()),
	})

	echo := recvEvent(t, siblingEvents)
	require.Equal(t, EventSynchronizeMessage, echo.Type)
	require.Equal(t, "hi", echo.Message.Text)

	delivered := recvEvent(t, bobEvents)
	require.Equal(t, EventChatMessage, delivered.Type)
	require.Equal(t, "hi", delivered.Message.Text)
	require.Equal(t, int64(1715938212345), delivered.Message.Time.Time().UnixMilli())
}

func TestBridgeWritesOutboundEvents(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(ctx)
	alice, err := registry.GetOrInsert(ctx, "alice")
	require.NoError(t, err)

	transport := newFakeTransport()
	session, err := NewSession(ctx, transport, alice)
	require.NoError(t, err)

	msg := &ChatMessage{Recipient: "alice", Sender: "bob", Text: "hi"}
	require.NoError(t, session.Deliver(ctx, deliveredEvent(msg)))

	event := recvFrame(t, transport)
	require.Equal(t, EventChatMessage, event.Type)
	require.Equal(t, "bob", event.Message.Sender)
	require.Equal(t, "hi", event.Message.Text)
}

func TestBridgeDropsMalformedFramesWithoutClosing(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(ctx)
	alice, err := registry.GetOrInsert(ctx, "alice")
	require.NoError(t, err)

	transport := newFakeTransport()
	_, err = NewSession(ctx, transport, alice)
	require.NoError(t, err)

	sibling, siblingEvents := newTestSession()
	require.NoError(t, alice.AddSession(ctx, sibling))

	transport.in <- []byte("not json")
	transport.in <- []byte(`{"text":"no recipient","time":0}`)
	transport.in <- encodeFrame(t, &ChatMessage{Recipient: "alice", Sender: "alice", Text: "still open"})

	echo := recvEvent(t, siblingEvents)
	require.Equal(t, EventSynchronizeMessage, echo.Type)
	require.Equal(t, "still open", echo.Message.Text)
}

func TestPeerCloseTearsDownSession(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(ctx)
	alice, err := registry.GetOrInsert(ctx, "alice")
	require.NoError(t, err)

	transport := newFakeTransport()
	_, err = NewSession(ctx, transport, alice)
	require.NoError(t, err)

	transport.peerClose()

	// The bridge's last act is removing itself, which empties the session
	// list and deregisters the user.
	require.Eventually(t, func() bool {
		users, err := registry.ListUsers(ctx)
		return err == nil && len(users) == 0
	}, 2*time.Second, 10*time.Millisecond)

	err = registry.Route(ctx, &ChatMessage{Recipient: "alice", Sender: "bob", Text: "late"})
	require.NoError(t, err)
}
