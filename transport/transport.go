// Package transport delivers formatted commands to an event-store
// server and hands back raw responses. It knows nothing about
// authentication or response semantics; both belong to the caller.
package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/luma/beacon/protocol"
)

// Kind tells the auth layer how commands carry credentials on this
// transport.
type Kind int

const (
	// KindRequest is a stateless one-shot request/response transport.
	KindRequest Kind = iota

	// KindSession is a persistent, ordered, single-socket transport.
	KindSession
)

func (k Kind) String() string {
	if k == KindSession {
		return "session"
	}
	return "request"
}

// Response is the raw wire result of one command exchange. Session
// transports derive Status from the first line of the body.
type Response struct {
	Status  int
	Body    string
	Headers map[string]string
}

// Transport is the two-operation contract every transport fulfils.
// Callers may supply their own implementation to the client instead of
// going through New.
//
// Execute failures are always protocol.ErrConnection; response-semantic
// errors are decided by the caller from Response.Status, never here.
type Transport interface {
	Execute(ctx context.Context, command string, headers map[string]string) (*Response, error)
	Close() error
	Kind() Kind
}

// New selects a transport by inspecting the URL scheme: http/https get
// a one-shot Request transport, everything else a persistent Session —
// ws/wss over WebSocket, any other scheme over a raw TCP socket, with
// tls-like schemes normalized to the secure variant.
func New(rawURL string, options Options) (Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid url %q: %v", protocol.ErrConnection, rawURL, err)
	}

	if u.Host == "" {
		return nil, fmt.Errorf("%w: url %q has no host", protocol.ErrConnection, rawURL)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return NewRequest(rawURL, options)

	case "ws", "wss":
		return NewSession(newWebsocketSocket(u, options), options), nil

	case "tls", "tcps", "ssl":
		return NewSession(newTCPSocket(u.Host, true, options), options), nil

	default:
		return NewSession(newTCPSocket(u.Host, false, options), options), nil
	}
}
