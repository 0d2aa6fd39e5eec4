package subscribe

import (
	"sync"

	"github.com/google/uuid"

	"gptchat/pkg/logger"
	"gptchat/pkg/metrics"
)

// Event is one change notification delivered to a subscriber. It names
// what changed, not the new contents; consumers re-read the store and
// emit a fresh snapshot.
type Event struct {
	Kind   string `json:"kind"` // "threads" or "messages"
	Owner  string `json:"owner"`
	Thread string `json:"thread,omitempty"`
}

type subscriber struct {
	id string
	ch chan Event
}

// Broker keeps live subscriber registries keyed by owner (thread lists)
// and by owner+thread (message lists). It implements store.Notifier so
// every successful store mutation reaches the affected subscribers.
// Delivery is best effort: a subscriber that cannot keep up loses
// intermediate events, which is fine because events are re-read cues,
// not payloads.
type Broker struct {
	mu       sync.Mutex
	threads  map[string][]*subscriber // owner -> subs
	messages map[string][]*subscriber // owner + "\x00" + thread -> subs
}

func NewBroker() *Broker {
	return &Broker{
		threads:  make(map[string][]*subscriber),
		messages: make(map[string][]*subscriber),
	}
}

func msgTopic(owner, threadID string) string {
	return owner + "\x00" + threadID
}

// ThreadsChanged implements store.Notifier.
func (b *Broker) ThreadsChanged(owner string) {
	b.publish(b.threads, owner, Event{Kind: "threads", Owner: owner})
}

// MessagesChanged implements store.Notifier.
func (b *Broker) MessagesChanged(owner, threadID string) {
	b.publish(b.messages, msgTopic(owner, threadID), Event{Kind: "messages", Owner: owner, Thread: threadID})
}

func (b *Broker) publish(reg map[string][]*subscriber, topic string, ev Event) {
	// copy the registration list so delivery never shares a backing
	// array with a concurrent cancel
	b.mu.Lock()
	subs := append([]*subscriber(nil), reg[topic]...)
	b.mu.Unlock()
	for _, s := range subs {
		select {
		case s.ch <- ev:
		default:
			// slow consumer; it will catch up on its next snapshot
			logger.Debug("subscriber_dropped_event", "sub", s.id, "kind", ev.Kind)
		}
	}
}

// SubscribeThreads registers for an owner's thread list changes. The
// returned cancel must be called on teardown; it is safe to call twice.
func (b *Broker) SubscribeThreads(owner string) (<-chan Event, func()) {
	return b.subscribe(b.threads, owner)
}

// SubscribeMessages registers for one thread's message changes.
func (b *Broker) SubscribeMessages(owner, threadID string) (<-chan Event, func()) {
	return b.subscribe(b.messages, msgTopic(owner, threadID))
}

func (b *Broker) subscribe(reg map[string][]*subscriber, topic string) (<-chan Event, func()) {
	s := &subscriber{id: uuid.NewString(), ch: make(chan Event, 16)}
	b.mu.Lock()
	reg[topic] = append(reg[topic], s)
	b.mu.Unlock()
	metrics.Subscribers.Inc()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			old := reg[topic]
			kept := make([]*subscriber, 0, len(old))
			for _, cur := range old {
				if cur.id != s.id {
					kept = append(kept, cur)
				}
			}
			if len(kept) == 0 {
				delete(reg, topic)
			} else {
				reg[topic] = kept
			}
			b.mu.Unlock()
			metrics.Subscribers.Dec()
		})
	}
	return s.ch, cancel
}
