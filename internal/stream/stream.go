package stream

import (
	"context"
	"sync"
	"time"
)

// Event types published on the activity stream.
const (
	EventSaleRecorded  = "sale.recorded"
	EventLoanDecided   = "loan.decided"
	EventScoreComputed = "score.computed"
	EventShiftOpened   = "shift.opened"
	EventMemberAdded   = "member.added"
)

// Event describes one activity-feed item for live dashboards.
type Event struct {
	Type           string    `json:"type"`
	OrganizationID string    `json:"organization_id"`
	ResourceID     string    `json:"resource_id,omitempty"`
	Amount         int64     `json:"amount,omitempty"` // minor units, when applicable
	Detail         string    `json:"detail,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Stream fan-outs activity events to active subscribers (SSE clients). Each
// subscription is bound to a single organization; events never cross tenants.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]subscriber
	next int
}

type subscriber struct {
	ch    chan Event
	orgID string
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]subscriber)}
}

// Subscribe registers a subscriber for one organization's events and returns a
// channel which will receive them. The channel is closed when the provided
// context ends.
func (s *Stream) Subscribe(ctx context.Context, orgID string) <-chan Event {
	ch := make(chan Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = subscriber{ch: ch, orgID: orgID}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to subscribers of its organization.
func (s *Stream) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if sub.orgID != evt.OrganizationID {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
