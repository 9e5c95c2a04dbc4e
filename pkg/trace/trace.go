package trace

import (
	"sync"
	"time"

	"github.com/mach-sim/rmach/pkg/types"
)

// EventType identifies the kind of kernel lifecycle event.
type EventType string

const (
	EventTaskSpawned   EventType = "task.spawned"
	EventTaskWaiting   EventType = "task.waiting"
	EventTaskReady     EventType = "task.ready"
	EventTaskClosed    EventType = "task.closed"
	EventPortCreated   EventType = "port.created"
	EventPortDestroyed EventType = "port.destroyed"
	EventHandlerFault  EventType = "handler.fault"
)

// Event is a single observable kernel occurrence.
type Event struct {
	Type      EventType
	Task      types.TaskID
	Port      types.PortID
	Timestamp time.Time
	Message   string
}

// Subscriber is a channel that receives Events.
type Subscriber chan Event

// Broker distributes Events to any number of subscribers without
// blocking the publisher.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]bool
	eventCh     chan Event
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewBroker creates a new, unstarted event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's distribution loop in a background goroutine.
func (b *Broker) Start() {
	go b.run()
}

// Stop shuts the broker down. Safe to call more than once.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe registers a new subscriber and returns its channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes and closes a subscriber's channel.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish queues an event for distribution. Non-blocking once the
// broker is stopped.
func (b *Broker) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- ev:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case ev := <-b.eventCh:
			b.broadcast(ev)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- ev:
		default:
			// subscriber buffer full, drop
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
