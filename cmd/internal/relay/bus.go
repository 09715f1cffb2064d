package relay

import (
	"log/slog"
	"sync"
)

// Store-emitted event names.
const (
	// EventNewMessage fires after AddMessage commits, carrying the full
	// StoredMessage value.
	EventNewMessage = "newMessage"
	// EventConversationUpdate fires on EmitConversationUpdate, carrying a
	// ConversationUpdate value.
	EventConversationUpdate = "conversationUpdate"
)

// Listener receives one published event. Payload is a MessageEvent for
// EventNewMessage and a ConversationUpdate for EventConversationUpdate,
// always passed by value so listeners can never mutate store state.
type Listener func(event string, payload any)

// Subscription detaches one listener. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}

// bus is the store's embedded notification fan-out.
//
// It is owned by Store (composition, not inheritance) so emitter internals
// never leak into the store's public surface. Publish is synchronous:
// listeners run in registration order on the publisher's goroutine, each
// wrapped in a recover so one panicking listener cannot starve the others
// or propagate to the writer.
type bus struct {
	log *slog.Logger

	mu        sync.RWMutex
	nextToken uint64
	listeners map[string]map[uint64]Listener
	order     map[string][]uint64
}

func newBus(log *slog.Logger) *bus {
	return &bus{
		log:       log,
		listeners: make(map[string]map[uint64]Listener),
		order:     make(map[string][]uint64),
	}
}

// subscribe registers fn for event and returns its detach handle.
func (b *bus) subscribe(event string, fn Listener) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextToken++
	token := b.nextToken

	if b.listeners[event] == nil {
		b.listeners[event] = make(map[uint64]Listener)
	}
	b.listeners[event][token] = fn
	b.order[event] = append(b.order[event], token)

	return &busSubscription{bus: b, event: event, token: token}
}

// unsubscribe removes a listener. Unknown tokens are a no-op.
func (b *bus) unsubscribe(event string, token uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ls := b.listeners[event]
	if ls == nil {
		return
	}
	if _, ok := ls[token]; !ok {
		return
	}
	delete(ls, token)

	tokens := b.order[event]
	for i, t := range tokens {
		if t == token {
			b.order[event] = append(tokens[:i], tokens[i+1:]...)
			break
		}
	}
}

// publish delivers payload to every current listener for event.
// The listener set is snapshotted so delivery is unaffected by concurrent
// subscribe/unsubscribe.
func (b *bus) publish(event string, payload any) {
	b.mu.RLock()
	tokens := append([]uint64(nil), b.order[event]...)
	snapshot := make([]Listener, 0, len(tokens))
	for _, t := range tokens {
		if fn := b.listeners[event][t]; fn != nil {
			snapshot = append(snapshot, fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range snapshot {
		b.dispatch(event, fn, payload)
	}
}

func (b *bus) dispatch(event string, fn Listener, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("bus.listener.panic", "event", event, "panic", r)
		}
	}()
	fn(event, payload)
}

// listenerCount reports the number of live listeners for event.
func (b *bus) listenerCount(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[event])
}

// clear drops every listener for every event.
func (b *bus) clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = make(map[string]map[uint64]Listener)
	b.order = make(map[string][]uint64)
}

type busSubscription struct {
	bus   *bus
	event string
	token uint64
}

func (s *busSubscription) Unsubscribe() {
	s.bus.unsubscribe(s.event, s.token)
}
