package relayexec

import "time"

// Config holds the Executor's tiered completion deadlines, defaulted per
// spec.md section 4.D.
type Config struct {
	RelayURL       string
	IdleTimeout    time.Duration // post-first-event idle deadline, default 300ms
	EmptyTimeout   time.Duration // empty-result deadline, default 1000ms
	HardTimeout    time.Duration // worst-case cap, default 5000ms
	PublishTimeout time.Duration // publish OK wait, default 3000ms
}

// DefaultConfig returns the deadlines spec.md section 4.D specifies.
func DefaultConfig(relayURL string) Config {
	return Config{
		RelayURL:       relayURL,
		IdleTimeout:    300 * time.Millisecond,
		EmptyTimeout:   1000 * time.Millisecond,
		HardTimeout:    5000 * time.Millisecond,
		PublishTimeout: 3000 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 300 * time.Millisecond
	}
	if c.EmptyTimeout <= 0 {
		c.EmptyTimeout = 1000 * time.Millisecond
	}
	if c.HardTimeout <= 0 {
		c.HardTimeout = 5000 * time.Millisecond
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 3000 * time.Millisecond
	}
	return c
}
