package jobs

import (
	"sync"
	"time"

	"vidscribe/internal/store"
)

// EventType classifies messages published while a job runs.
type EventType string

const (
	EventJobStarted       EventType = "job_started"
	EventProgress         EventType = "progress"
	EventLog              EventType = "log"
	EventError            EventType = "error"
	EventJobFinished      EventType = "job_finished"
	EventTranscriptAdded  EventType = "transcript_added"
	EventDownloadProgress EventType = "download_progress"
)

// Event is a sequenced payload consumed by the CLI renderer and the
// WebSocket channel.
type Event struct {
	Seq       int64        `json:"seq"`
	Timestamp time.Time    `json:"timestamp"`
	Type      EventType    `json:"type"`
	JobID     string       `json:"jobId,omitempty"`
	Current   int          `json:"current,omitempty"`
	Total     int          `json:"total,omitempty"`
	Message   string       `json:"message,omitempty"`
	Status    store.Status `json:"status,omitempty"`
	Path      string       `json:"path,omitempty"`
	Data      any          `json:"data,omitempty"`
}

// Bus keeps a bounded history of events and fans them out to subscribers.
// Publish never blocks: a subscriber that falls behind loses events from its
// channel, and a Cursor refills them from the history.
type Bus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
	subs      map[int]chan Event
	nextSub   int
}

// NewBus creates a bus retaining up to maxEvents events.
func NewBus(maxEvents int) *Bus {
	if maxEvents <= 0 {
		maxEvents = 500
	}
	return &Bus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
		subs:      make(map[int]chan Event),
	}
}

// Publish appends one event, assigning sequence and timestamp.
func (b *Bus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
	return event
}

// Since returns retained events with sequence strictly greater than seq.
func (b *Bus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// Subscribe returns a channel receiving every event published from now on
// and a function that unsubscribes and closes it.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 256
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Latest returns the sequence number of the newest published event.
func (b *Bus) Latest() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextSeq
}

// Cursor keeps one subscriber's view of the bus in sequence order.
type Cursor struct {
	bus  *Bus
	last int64
}

// CursorAt returns a cursor that has already delivered every event up to seq.
func (b *Bus) CursorAt(seq int64) *Cursor {
	return &Cursor{bus: b, last: seq}
}

// Next returns what to deliver for ev, which came off a subscription
// channel: nothing for an event already delivered, ev itself when it follows
// the previous one, and the retained backlog through ev after a gap.
func (c *Cursor) Next(ev Event) []Event {
	if ev.Seq <= c.last {
		return nil
	}
	var out []Event
	if ev.Seq > c.last+1 {
		for _, held := range c.bus.Since(c.last) {
			if held.Seq >= ev.Seq {
				break
			}
			out = append(out, held)
		}
	}
	c.last = ev.Seq
	return append(out, ev)
}

// Last is the sequence number of the newest delivered event.
func (c *Cursor) Last() int64 { return c.last }
