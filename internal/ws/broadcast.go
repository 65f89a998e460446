package ws

import (
	"log"
	"sync"
	"sync/atomic"
)

const DefaultBuffer = 100

// Subscriber receives every message published after it subscribed, until
// its channel is closed. A closed channel means the subscriber was dropped
// and must re-read full state.
type Subscriber struct {
	ch chan Message
}

func (s *Subscriber) C() <-chan Message {
	return s.ch
}

// Broadcaster fans notifications out to subscribers without ever blocking
// the publisher.
type Broadcaster struct {
	mu      sync.Mutex
	subs    map[*Subscriber]struct{}
	buffer  int
	dropped atomic.Int64
}

func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broadcaster{
		subs:   make(map[*Subscriber]struct{}),
		buffer: buffer,
	}
}

func (b *Broadcaster) Subscribe() *Subscriber {
	s := &Subscriber{ch: make(chan Message, b.buffer)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Unsubscribe removes s and closes its channel. It is safe to call more
// than once.
func (b *Broadcaster) Unsubscribe(s *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(s)
}

func (b *Broadcaster) removeLocked(s *Subscriber) {
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
}

// Publish delivers msg to every subscriber with room in its buffer. A
// subscriber whose buffer is full is dropped.
func (b *Broadcaster) Publish(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		select {
		case s.ch <- msg:
		default:
			b.removeLocked(s)
			b.dropped.Add(1)
			log.Printf("ws subscriber too slow, dropping (%d subscribers left)", len(b.subs))
		}
	}
}

func (b *Broadcaster) Changed(sessionID string) {
	b.Publish(Message{Type: MsgSessionUpdate, SessionID: sessionID})
}

func (b *Broadcaster) Deleted(sessionID string) {
	b.Publish(Message{Type: MsgSessionDeleted, SessionID: sessionID})
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped counts subscribers removed for falling behind.
func (b *Broadcaster) Dropped() int64 {
	return b.dropped.Load()
}
