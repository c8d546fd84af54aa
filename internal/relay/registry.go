package relay

import (
	"context"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"chatrelay/internal/metrics"
)

// The registry actor routes messages between user aggregators and owns the
// name -> aggregator table. The alternative would be for every aggregator to
// hold handles to every other aggregator, a fully connected mesh whose handle
// count grows quadratically with the number of users. Routing everything
// through one central actor keeps the fan-out linear (star topology).

type registryMsg interface{ isRegistryMsg() }

type routeMsg struct{ msg *ChatMessage }

type getOrInsertMsg struct {
	name  string
	reply chan UserHandle
}

type listUsersMsg struct{ reply chan []string }

type removeUserMsg struct{ name string }

func (routeMsg) isRegistryMsg()       {}
func (getOrInsertMsg) isRegistryMsg() {}
func (listUsersMsg) isRegistryMsg()   {}
func (removeUserMsg) isRegistryMsg()  {}

type registry struct {
	mailbox     chan registryMsg
	done        chan struct{}
	usersByName map[string]UserHandle
}

// RegistryHandle enqueues requests into the registry actor's mailbox. Copies
// share the same actor; the zero value is unusable.
type RegistryHandle struct {
	mailbox chan<- registryMsg
	done    <-chan struct{}
}

// NewRegistry starts the registry actor. Its loop exits when ctx is
// cancelled, after which every handle operation fails with ErrTerminated.
func NewRegistry(ctx context.Context) RegistryHandle {
	r := &registry{
		mailbox:     make(chan registryMsg, mailboxCap),
		done:        make(chan struct{}),
		usersByName: make(map[string]UserHandle),
	}
	go r.run(ctx)
	return r.handle()
}

func (r *registry) handle() RegistryHandle {
	return RegistryHandle{mailbox: r.mailbox, done: r.done}
}

func (r *registry) run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-r.mailbox:
			r.process(ctx, msg)
		}
	}
}

func (r *registry) process(ctx context.Context, msg registryMsg) {
	switch msg := msg.(type) {
	case routeMsg:
		user, ok := r.usersByName[msg.msg.Recipient]
		if !ok {
			// Recipient not registered: drop, no retry, no dead-letter.
			metrics.MessagesDropped.Inc()
			zap.L().Info("route_miss", zap.String("recipient", msg.msg.Recipient))
			return
		}
		if err := user.DeliverFromRegistry(ctx, msg.msg); err != nil {
			zap.L().Warn("route_deliver",
				zap.String("recipient", msg.msg.Recipient), zap.Error(err))
			return
		}
		metrics.MessagesRouted.Inc()

	case getOrInsertMsg:
		user, ok := r.usersByName[msg.name]
		if !ok {
			user = newUserAggregator(ctx, msg.name, r.handle())
			r.usersByName[msg.name] = user
			metrics.ActiveUsers.Inc()
			r.notifyContacts(msg.name, contactAddedEvent(msg.name))
		}
		select {
		case msg.reply <- user:
		default:
			zap.L().Error("get_or_insert_reply_dropped", zap.String("user", msg.name))
		}

	case listUsersMsg:
		select {
		case msg.reply <- lo.Keys(r.usersByName):
		default:
			zap.L().Error("list_users_reply_dropped")
		}

	case removeUserMsg:
		if _, ok := r.usersByName[msg.name]; !ok {
			return
		}
		delete(r.usersByName, msg.name)
		metrics.ActiveUsers.Dec()
		r.notifyContacts(msg.name, contactRemovedEvent(msg.name))
	}
}

// notifyContacts tells every other aggregator that the peer list changed.
// Best-effort: a full mailbox drops the notification instead of wedging the
// registry loop against an aggregator that is itself waiting on the registry.
func (r *registry) notifyContacts(name string, event OutboundEvent) {
	for other, user := range r.usersByName {
		if other == name {
			continue
		}
		user.tryNotifyContact(event)
	}
}

// GetOrInsert returns the aggregator handle for name, creating and
// registering a fresh one on first sight. Safe to call concurrently for the
// same name; all callers get the same handle.
func (h RegistryHandle) GetOrInsert(ctx context.Context, name string) (UserHandle, error) {
	reply := make(chan UserHandle, 1)
	if err := send(ctx, h.mailbox, h.done, registryMsg(getOrInsertMsg{name: name, reply: reply})); err != nil {
		return UserHandle{}, err
	}
	return await(ctx, reply, h.done)
}

// Route forwards msg to the aggregator registered for msg.Recipient. An
// unregistered recipient is not an error: the message is dropped and logged.
func (h RegistryHandle) Route(ctx context.Context, msg *ChatMessage) error {
	return send(ctx, h.mailbox, h.done, registryMsg(routeMsg{msg: msg}))
}

// ListUsers snapshots the currently registered names. The snapshot is stale
// the moment it is taken; callers must tolerate names disappearing.
func (h RegistryHandle) ListUsers(ctx context.Context) ([]string, error) {
	reply := make(chan []string, 1)
	if err := send(ctx, h.mailbox, h.done, registryMsg(listUsersMsg{reply: reply})); err != nil {
		return nil, err
	}
	return await(ctx, reply, h.done)
}

// Remove deletes the entry for name. Idempotent; a miss is not an error.
func (h RegistryHandle) Remove(ctx context.Context, name string) error {
	return send(ctx, h.mailbox, h.done, registryMsg(removeUserMsg{name: name}))
}
