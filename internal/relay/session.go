package relay

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionID identifies one session within its user's session list. It is used
// only to exclude the originating session from sync fan-out and to look the
// session up for removal.
type SessionID string

func newSessionID() SessionID { return SessionID(uuid.NewString()) }

// Transport is an already-upgraded, full-duplex, message-framed connection.
// The upgrade handshake and any keepalive concerns belong to the caller.
type Transport interface {
	// ReadFrame blocks until the next data frame arrives. It returns an
	// error once the peer has closed the connection or a read fails.
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
	Close() error
}

// The session bridge actor adapts one transport connection to the relay's
// internal protocol. Its loop services two event sources in arrival order:
// outbound events from the user aggregator, which it encodes onto the
// transport, and inbound frames, which it decodes and hands to the
// aggregator tagged with its own id.
type sessionBridge struct {
	id        SessionID
	user      UserHandle
	transport Transport
	mailbox   chan OutboundEvent
	done      chan struct{}
}

// SessionHandle enqueues outbound events into one session bridge's mailbox.
type SessionHandle struct {
	ID      SessionID
	mailbox chan<- OutboundEvent
	done    <-chan struct{}
}

// NewSession attaches a bridge actor to an upgraded connection. The session
// is registered with the aggregator before the read loop starts, so no frame
// from this session can reach the aggregator ahead of its own registration.
// An error means the aggregator is already gone; the caller owns closing the
// transport.
func NewSession(ctx context.Context, transport Transport, user UserHandle) (SessionHandle, error) {
	s := &sessionBridge{
		id:        newSessionID(),
		user:      user,
		transport: transport,
		mailbox:   make(chan OutboundEvent, mailboxCap),
		done:      make(chan struct{}),
	}
	handle := SessionHandle{ID: s.id, mailbox: s.mailbox, done: s.done}
	if err := user.AddSession(ctx, handle); err != nil {
		return SessionHandle{}, err
	}
	go s.run(ctx)
	return handle, nil
}

func (s *sessionBridge) run(ctx context.Context) {
	defer close(s.done)

	frames := make(chan []byte)
	go s.readFrames(frames)

	for {
		select {
		case <-ctx.Done():
			_ = s.transport.Close()
			s.detach(context.WithoutCancel(ctx))
			return
		case event := <-s.mailbox:
			s.writeEvent(event)
		case data, ok := <-frames:
			if !ok {
				// Peer closed or the read side failed.
				s.detach(ctx)
				return
			}
			s.handleFrame(ctx, data)
		}
	}
}

// readFrames pumps inbound frames into the bridge loop and closes the channel
// on the first read error. It unblocks through s.done if the loop exits
// first.
func (s *sessionBridge) readFrames(frames chan<- []byte) {
	defer close(frames)
	for {
		data, err := s.transport.ReadFrame()
		if err != nil {
			return
		}
		select {
		case frames <- data:
		case <-s.done:
			return
		}
	}
}

func (s *sessionBridge) handleFrame(ctx context.Context, data []byte) {
	msg, err := DecodeChatMessage(data)
	if err != nil {
		// Malformed frame: drop it, keep the connection.
		zap.L().Warn("frame_decode", zap.String("session", string(s.id)), zap.Error(err))
		return
	}
	if err := s.user.DeliverFromSession(ctx, s.id, msg); err != nil {
		zap.L().Error("session_forward", zap.String("session", string(s.id)), zap.Error(err))
	}
}

func (s *sessionBridge) writeEvent(event OutboundEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		// Drop this one event, keep the connection.
		zap.L().Error("event_encode", zap.String("session", string(s.id)), zap.Error(err))
		return
	}
	if err := s.transport.WriteFrame(data); err != nil {
		zap.L().Warn("frame_write", zap.String("session", string(s.id)), zap.Error(err))
		// A failed write means the connection is gone; closing it makes the
		// read side fail too, which tears the bridge down exactly once.
		_ = s.transport.Close()
	}
}

// detach reports this session's removal to its aggregator, the bridge's last
// act before its loop exits.
func (s *sessionBridge) detach(ctx context.Context) {
	if err := s.user.RemoveSession(ctx, s.id); err != nil {
		zap.L().Warn("session_detach", zap.String("session", string(s.id)), zap.Error(err))
	}
}

// Deliver queues an outbound event for encoding onto the transport.
func (h SessionHandle) Deliver(ctx context.Context, event OutboundEvent) error {
	return send(ctx, h.mailbox, h.done, event)
}
