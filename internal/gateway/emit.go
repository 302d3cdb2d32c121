package gateway

import "sync"

// Serialize wraps emit so that concurrent callers are delivered one at a time
// and nothing is delivered after the first terminal event. Tools whose
// progress arrives on a different goroutine than their exit status use it to
// keep the per-run ordering guarantee.
func Serialize(emit func(Event)) func(Event) {
	var (
		mu   sync.Mutex
		done bool
	)
	return func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		if done {
			return
		}
		if IsTerminal(ev) {
			done = true
		}
		emit(ev)
	}
}
