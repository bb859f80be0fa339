package api

import "sync"

// Event types delivered on a session's stream.
const (
	EventQuestion   = "question"
	EventEvaluation = "evaluation"
	EventReport     = "report"
)

// Event is one item on a session's stream.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// subscriberBuffer is the per-subscriber channel depth; a subscriber that
// falls further behind starts losing events rather than blocking turns.
const subscriberBuffer = 16

// Broker fans interview events out to stream subscribers, keyed by session id.
// Publishing never blocks.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers a listener for a session's events. The returned cancel
// function must be called when the listener goes away.
func (b *Broker) Subscribe(sessionID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[chan Event]struct{})
	}
	b.subs[sessionID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if set, ok := b.subs[sessionID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(b.subs, sessionID)
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber of the session. Slow subscribers
// drop events.
func (b *Broker) Publish(sessionID string, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[sessionID] {
		select {
		case ch <- ev:
		default:
		}
	}
}
