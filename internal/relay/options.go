package relay

import "time"

const (
	DefaultClientTimeout  = 10 * time.Second
	DefaultBackendTimeout = 5 * time.Second
	DefaultMaxHeaderBytes = 64 * 1024
	DefaultMaxBodyBytes   = 10 * 1024 * 1024
	DefaultPollInterval   = 500 * time.Millisecond
	DefaultIdleGap        = time.Second
)

// Options bounds every blocking step of an exchange. Zero values fall back
// to the defaults.
type Options struct {
	// ClientTimeout bounds reading the whole request and writing the reply.
	ClientTimeout time.Duration
	// BackendTimeout bounds the upstream dial, the forward write and the
	// wait for the first response byte.
	BackendTimeout time.Duration
	// MaxHeaderBytes caps the buffered request head.
	MaxHeaderBytes int
	// MaxBodyBytes caps the declared request body length.
	MaxBodyBytes int64
	// PollInterval is the upstream read wait between idle checks.
	PollInterval time.Duration
	// IdleGap ends the response drain after this much silence.
	IdleGap time.Duration
}

func (o Options) withDefaults() Options {
	if o.ClientTimeout <= 0 {
		o.ClientTimeout = DefaultClientTimeout
	}
	if o.BackendTimeout <= 0 {
		o.BackendTimeout = DefaultBackendTimeout
	}
	if o.MaxHeaderBytes <= 0 {
		o.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.IdleGap <= 0 {
		o.IdleGap = DefaultIdleGap
	}
	return o
}
