package reload

import (
	"time"
)

// Event describes one finished Apply.
type Event struct {
	Scope   string
	Type    string
	Tag     string // version tag of the candidate
	Seq     int    // version number, 0 unless applied
	Outcome Outcome
	Record  *ChangeRecord
	Err     error
	At      time.Time
}

// Listener is notified after every Apply that reached a known type.
type Listener interface {
	Reloaded(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) Reloaded(e Event) { f(e) }

func notify(listeners []Listener, e Event) {
	for _, l := range listeners {
		safeNotify(l, e)
	}
}

func safeNotify(l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("listener %T panicked on %s: %v", l, e.Type, r)
		}
	}()
	l.Reloaded(e)
}
