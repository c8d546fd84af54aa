package relay

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"chatrelay/internal/metrics"
)

// The user aggregator actor owns the set of live sessions for one user name.
// It fans messages addressed to the user out to every session, relays a sync
// copy of anything one session sends to that user's other sessions, and tears
// itself down once its last session is gone.

type userMsg interface{ isUserMsg() }

type addSessionMsg struct{ session SessionHandle }

type removeSessionMsg struct{ id SessionID }

type fromSessionMsg struct {
	source SessionID
	msg    *ChatMessage
}

type fromRegistryMsg struct{ msg *ChatMessage }

type contactMsg struct{ event OutboundEvent }

func (addSessionMsg) isUserMsg()    {}
func (removeSessionMsg) isUserMsg() {}
func (fromSessionMsg) isUserMsg()   {}
func (fromRegistryMsg) isUserMsg()  {}
func (contactMsg) isUserMsg()       {}

type userAggregator struct {
	name     string
	registry RegistryHandle
	mailbox  chan userMsg
	done     chan struct{}
	// Mutated only by the aggregator's own loop.
	sessions []SessionHandle
}

// UserHandle enqueues requests into one user aggregator's mailbox.
type UserHandle struct {
	mailbox chan<- userMsg
	done    <-chan struct{}
}

// newUserAggregator starts the aggregator actor for name. Only the registry
// creates aggregators, from its get-or-insert path, so there is never more
// than one per name.
func newUserAggregator(ctx context.Context, name string, registry RegistryHandle) UserHandle {
	u := &userAggregator{
		name:     name,
		registry: registry,
		mailbox:  make(chan userMsg, mailboxCap),
		done:     make(chan struct{}),
		// An aggregator is only ever created on behalf of a connecting session.
		sessions: make([]SessionHandle, 0, 1),
	}
	go u.run(ctx)
	return UserHandle{mailbox: u.mailbox, done: u.done}
}

func (u *userAggregator) run(ctx context.Context) {
	defer close(u.done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-u.mailbox:
			if terminated := u.process(ctx, msg); terminated {
				return
			}
		}
	}
}

func (u *userAggregator) process(ctx context.Context, msg userMsg) (terminated bool) {
	switch msg := msg.(type) {
	case addSessionMsg:
		u.sessions = append(u.sessions, msg.session)
		metrics.ActiveSessions.Inc()

	case removeSessionMsg:
		i := slices.IndexFunc(u.sessions, func(s SessionHandle) bool {
			return s.ID == msg.id
		})
		if i < 0 {
			zap.L().Warn("session_not_found",
				zap.String("user", u.name), zap.String("session", string(msg.id)))
			return false
		}
		u.sessions = slices.Delete(u.sessions, i, i+1)
		metrics.ActiveSessions.Dec()
		if len(u.sessions) > 0 {
			return false
		}
		// Last session gone: deregister, then stop the loop for good.
		if err := u.registry.Remove(ctx, u.name); err != nil {
			zap.L().Error("user_deregister", zap.String("user", u.name), zap.Error(err))
		}
		return true

	case fromSessionMsg:
		echo := syncEchoEvent(msg.msg)
		for _, session := range u.sessions {
			if session.ID == msg.source {
				continue
			}
			if err := session.Deliver(ctx, echo); err != nil {
				zap.L().Warn("sync_echo",
					zap.String("user", u.name),
					zap.String("session", string(session.ID)), zap.Error(err))
				continue
			}
			metrics.SyncEchoes.Inc()
		}
		if err := u.registry.Route(ctx, msg.msg); err != nil {
			zap.L().Error("forward_to_registry", zap.String("user", u.name), zap.Error(err))
		}

	case fromRegistryMsg:
		u.broadcast(ctx, deliveredEvent(msg.msg))

	case contactMsg:
		u.broadcast(ctx, msg.event)
	}
	return false
}

// broadcast delivers event to every session in list order. A failed send is
// logged and skipped; it never aborts delivery to the remaining sessions.
func (u *userAggregator) broadcast(ctx context.Context, event OutboundEvent) {
	for _, session := range u.sessions {
		if err := session.Deliver(ctx, event); err != nil {
			zap.L().Warn("session_deliver",
				zap.String("user", u.name),
				zap.String("session", string(session.ID)), zap.Error(err))
		}
	}
}

// AddSession attaches a live session bridge. There is no upper bound on how
// many sessions a user may hold.
func (h UserHandle) AddSession(ctx context.Context, session SessionHandle) error {
	return send(ctx, h.mailbox, h.done, userMsg(addSessionMsg{session: session}))
}

// RemoveSession detaches the session with the given id. Removing the last
// session deregisters the user and terminates the aggregator.
func (h UserHandle) RemoveSession(ctx context.Context, id SessionID) error {
	return send(ctx, h.mailbox, h.done, userMsg(removeSessionMsg{id: id}))
}

// DeliverFromSession handles a message one of this user's own sessions sent:
// the sender's other sessions get a sync copy, and the message is forwarded
// to the registry for delivery to its recipient.
func (h UserHandle) DeliverFromSession(ctx context.Context, source SessionID, msg *ChatMessage) error {
	return send(ctx, h.mailbox, h.done, userMsg(fromSessionMsg{source: source, msg: msg}))
}

// DeliverFromRegistry handles a message addressed to this user: every current
// session gets a copy.
func (h UserHandle) DeliverFromRegistry(ctx context.Context, msg *ChatMessage) error {
	return send(ctx, h.mailbox, h.done, userMsg(fromRegistryMsg{msg: msg}))
}

// tryNotifyContact enqueues a peer-list notification without blocking. The
// registry calls this while holding no way to yield, so a full mailbox drops
// the event rather than deadlocking the two loops against each other.
func (h UserHandle) tryNotifyContact(event OutboundEvent) {
	select {
	case h.mailbox <- contactMsg{event: event}:
	case <-h.done:
	default:
		zap.L().Debug("contact_notify_dropped", zap.String("contact", event.Name))
	}
}
