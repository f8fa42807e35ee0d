package notify

import (
	"sync"
	"time"

	"softphone/internal/metrics"

	"github.com/google/uuid"
)

type Kind string

const (
	KindSession Kind = "session"
	KindNotice  Kind = "notice"
	KindTick    Kind = "tick"
	KindSMS     Kind = "sms"
)

// Event is one message fanned out to subscribers (the SSE stream).
type Event struct {
	ID   string    `json:"id"`
	Kind Kind      `json:"kind"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

// Hub broadcasts events to subscribers. A subscriber that cannot keep up
// loses events rather than stalling publishers.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]chan Event
	buffer int
	clock  func() time.Time
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 32
	}
	return &Hub{subs: map[string]chan Event{}, buffer: buffer, clock: time.Now}
}

// Subscribe registers a new subscriber. cancel must be called to release it.
func (h *Hub) Subscribe() (events <-chan Event, cancel func()) {
	id := uuid.NewString()
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	h.subs[id] = ch
	metrics.EventSubscribers.Set(float64(len(h.subs)))
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			metrics.EventSubscribers.Set(float64(len(h.subs)))
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Publish(kind Kind, data any) {
	ev := Event{ID: uuid.NewString(), Kind: kind, At: h.clock(), Data: data}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			metrics.EventsDropped.Inc()
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
