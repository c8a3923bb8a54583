package sharedfile

import "sync"

// EventType is the kind of a lifecycle notification.
type EventType uint8

const (
	// EventOpen is emitted after the Coordinator opened the file itself.
	EventOpen EventType = iota + 1
	// EventClose is emitted when the file was closed, or logically released
	// by the last stream when AutoClose is off.
	EventClose
	// EventError is emitted for failures that have no caller to return to.
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventOpen:
		return "open"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event is a lifecycle notification of a Coordinator.
type Event struct {
	Type EventType
	// Fd is the descriptor of the file for EventOpen and EventClose.
	Fd uintptr
	// Err is set for EventError.
	Err error
}

// Listener receives events. It runs on the goroutine that caused the event,
// after the Coordinator released its locks.
type Listener func(Event)

type listenerEntry struct {
	id uint64
	fn Listener
}

type listeners struct {
	mu     sync.Mutex
	nextID uint64
	list   []listenerEntry
}

func (l *listeners) add(fn Listener) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	id := l.nextID
	l.list = append(l.list, listenerEntry{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { l.remove(id) })
	}
}

func (l *listeners) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, e := range l.list {
		if e.id == id {
			l.list = append(l.list[:i:i], l.list[i+1:]...)
			return
		}
	}
}

func (l *listeners) emit(ev Event) {
	l.mu.Lock()
	list := l.list
	l.mu.Unlock()

	for _, e := range list {
		e.fn(ev)
	}
}
