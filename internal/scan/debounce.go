package scan

import "time"

// debouncer remembers when each payload last finished a cycle. Callers hold
// the loop mutex.
type debouncer struct {
	window time.Duration
	seen   map[string]time.Time
	now    func() time.Time
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{window: window, seen: make(map[string]time.Time), now: time.Now}
}

func (d *debouncer) suppressed(payload string) bool {
	if d.window <= 0 {
		return false
	}
	last, ok := d.seen[payload]
	return ok && d.now().Sub(last) < d.window
}

func (d *debouncer) record(payload string) {
	if d.window <= 0 {
		return
	}
	now := d.now()
	for p, at := range d.seen {
		if now.Sub(at) >= d.window {
			delete(d.seen, p)
		}
	}
	d.seen[payload] = now
}
