package identity

import "time"

// Option configures a Directory.
type Option func(*Directory)

// WithMode sets how unregistered IDs are treated. Unknown modes are ignored.
func WithMode(m Mode) Option {
	return func(d *Directory) {
		if m == ModeOpen || m == ModeRegistered {
			d.mode = m
		}
	}
}

// WithLatency simulates a remote lookup. Resolve still honours ctx.
func WithLatency(latency time.Duration) Option {
	return func(d *Directory) {
		if latency > 0 {
			d.latency = latency
		}
	}
}

// WithPlayers pre-registers players, keyed by ID.
func WithPlayers(names map[string]string) Option {
	return func(d *Directory) {
		for id, name := range names {
			d.names[id] = name
		}
	}
}
