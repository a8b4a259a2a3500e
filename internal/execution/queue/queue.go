package queue

import "sync"

// Event identifies a queue notification.
type Event int

const (
	// EventPushed is emitted after an item was appended to the queue.
	EventPushed Event = iota

	// EventPopped is emitted after an item was removed from the queue.
	EventPopped
)

func (e Event) String() string {
	switch e {
	case EventPushed:
		return "pushed"
	case EventPopped:
		return "popped"
	default:
		return "unknown"
	}
}

// Listener receives the item an event was emitted for.
type Listener[T any] func(T)

type subscription[T any] struct {
	id   uint64
	fn   Listener[T]
	once bool
}

// Queue is an unbounded FIFO buffer that notifies listeners about
// pushed and popped items. All methods are safe for concurrent use.
//
// Listeners are invoked synchronously, in registration order, after
// the queue lock was released. A listener may therefore call back into
// the queue, e.g. to shift the item that was just pushed.
type Queue[T any] struct {
	mu        sync.Mutex
	items     []T
	listeners map[Event][]subscription[T]
	nextID    uint64
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		listeners: make(map[Event][]subscription[T]),
	}
}

// Push appends the item to the tail of the queue and emits EventPushed.
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	q.emit(EventPushed, item)
}

// Shift removes and returns the head of the queue. The second return
// value is false if the queue is empty. EventPopped is emitted with
// the removed item.
func (q *Queue[T]) Shift() (T, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		var zero T
		return zero, false
	}

	item := q.items[0]

	// clear the reference so the item can be collected
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	q.mu.Unlock()

	q.emit(EventPopped, item)

	return item, true
}

// Drain removes all items from the queue and returns them in FIFO
// order. EventPopped is emitted for every removed item.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()

	for _, item := range items {
		q.emit(EventPopped, item)
	}

	return items
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

// On registers a listener for the given event. The returned function
// removes the listener.
func (q *Queue[T]) On(event Event, fn Listener[T]) func() {
	return q.subscribe(event, fn, false)
}

// Once registers a listener that is removed after its first invocation.
// The returned function removes the listener if it has not fired yet.
func (q *Queue[T]) Once(event Event, fn Listener[T]) func() {
	return q.subscribe(event, fn, true)
}

func (q *Queue[T]) subscribe(event Event, fn Listener[T], once bool) func() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextID++
	id := q.nextID

	q.listeners[event] = append(q.listeners[event], subscription[T]{
		id:   id,
		fn:   fn,
		once: once,
	})

	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()

		q.removeLocked(event, id)
	}
}

func (q *Queue[T]) emit(event Event, item T) {
	q.mu.Lock()
	subs := q.listeners[event]
	if len(subs) == 0 {
		q.mu.Unlock()
		return
	}

	// snapshot the listeners and drop one-shot listeners before they
	// run, so a listener that pushes cannot trigger itself again
	snapshot := make([]subscription[T], len(subs))
	copy(snapshot, subs)

	kept := subs[:0]
	for _, sub := range subs {
		if !sub.once {
			kept = append(kept, sub)
		}
	}
	q.listeners[event] = kept
	q.mu.Unlock()

	for _, sub := range snapshot {
		sub.fn(item)
	}
}

func (q *Queue[T]) removeLocked(event Event, id uint64) {
	subs := q.listeners[event]
	for i, sub := range subs {
		if sub.id == id {
			q.listeners[event] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}
