package broadcast

import (
	"github.com/mcdev12/countdown/go/internal/countdown/events"
)

// Sink is anything that accepts signals without blocking.
type Sink interface {
	Notify(sig events.Signal)
}

// Fanout forwards each signal to every sink in order.
type Fanout []Sink

func (f Fanout) Notify(sig events.Signal) {
	for _, s := range f {
		if s != nil {
			s.Notify(sig)
		}
	}
}
