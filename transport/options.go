package transport

import (
	"crypto/tls"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultRequestTimeout = 60 * time.Second
)

type Options struct {
	// ConnectTimeout bounds a single session connection attempt.
	ConnectTimeout time.Duration

	// RequestTimeout bounds one command exchange: the full HTTP round
	// trip on a request transport, the per-request response wait on a
	// session transport.
	RequestTimeout time.Duration

	// TLSConfig overrides the config used by secure sockets.
	TLSConfig *tls.Config

	Log *zap.Logger
}

// withDefaults fills the zero values. The logger defaults to a nop so
// transports never reach for a global one.
func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}

	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}

	if o.Log == nil {
		o.Log = zap.NewNop()
	}

	return o
}
