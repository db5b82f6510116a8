package cluster

import (
	"time"
)

// Config configures a node.
type Config struct {
	// AckTimeout bounds the time an originator waits for the acks of a write.
	AckTimeout time.Duration
	// LockTimeout bounds the time a primary owner waits for a key lock.
	LockTimeout time.Duration
	// RecordTTL is how long completed invocations are remembered for retries.
	RecordTTL time.Duration
	// MaxRetries is the number of retries of a write after a topology change,
	// a negative value disables retries.
	MaxRetries int
	// RetryBackoff is the pause before a retry.
	RetryBackoff time.Duration
	// TopologyTimeout bounds the time a node waits for a topology it has not
	// installed yet, before a retry or when a command of a newer topology
	// arrives.
	TopologyTimeout time.Duration
}

// DefaultConfig returns the configuration used for zero fields.
func DefaultConfig() Config {
	return Config{
		AckTimeout:      15 * time.Second,
		LockTimeout:     10 * time.Second,
		RecordTTL:       time.Minute,
		MaxRetries:      3,
		RetryBackoff:    10 * time.Millisecond,
		TopologyTimeout: 5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.AckTimeout <= 0 {
		c.AckTimeout = d.AckTimeout
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = d.LockTimeout
	}
	if c.RecordTTL <= 0 {
		c.RecordTTL = d.RecordTTL
	}
	switch {
	case c.MaxRetries == 0:
		c.MaxRetries = d.MaxRetries
	case c.MaxRetries < 0:
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = d.RetryBackoff
	}
	if c.TopologyTimeout <= 0 {
		c.TopologyTimeout = d.TopologyTimeout
	}
	return c
}
