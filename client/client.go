// Package client composes the auth state machine, a transport and the
// response parser into the execute/authenticate/close surface every
// caller of Beacon uses.
package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/luma/beacon/protocol"
	"github.com/luma/beacon/transport"
)

var tokenPattern = regexp.MustCompile(`^OK TOKEN (\S+)`)

type Options struct {
	// UserID and SecretKey are the shared credentials. Both empty means
	// unauthenticated access.
	UserID    string
	SecretKey string

	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	TLSConfig      *tls.Config

	Log *zap.Logger
}

func (o Options) transportOptions() transport.Options {
	log := o.Log
	if log == nil {
		log = zap.NewNop()
	}

	return transport.Options{
		ConnectTimeout: o.ConnectTimeout,
		RequestTimeout: o.RequestTimeout,
		TLSConfig:      o.TLSConfig,
		Log:            log,
	}
}

// Client is the protocol engine for one server connection. It owns its
// AuthState; sharing one across transports is not supported.
type Client struct {
	transport transport.Transport
	auth      *protocol.AuthState
	log       *zap.Logger
}

// New builds a client, selecting the transport from the URL scheme (see
// transport.New).
func New(rawURL string, options Options) (*Client, error) {
	t, err := transport.New(rawURL, options.transportOptions())
	if err != nil {
		return nil, err
	}

	return NewWithTransport(t, options), nil
}

// NewWithTransport builds a client around a caller-supplied transport,
// bypassing scheme selection.
func NewWithTransport(t transport.Transport, options Options) *Client {
	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		transport: t,
		auth:      protocol.NewAuthState(options.UserID, options.SecretKey),
		log:       log.Named("client"),
	}
}

// Execute signs and sends one command, then maps the response status to
// an outcome: parsed records on 200, a typed error otherwise.
func (c *Client) Execute(ctx context.Context, command string) ([]*protocol.Record, error) {
	resp, err := c.send(ctx, command)
	if err != nil {
		return nil, err
	}

	return c.interpret(resp)
}

// Run is the non-throwing flavor of Execute. The Outcome carries the
// same typed error Execute would return, plus the raw status when a
// response was received at all.
func (c *Client) Run(ctx context.Context, command string) Outcome {
	resp, err := c.send(ctx, command)
	if err != nil {
		return Outcome{Err: err}
	}

	records, err := c.interpret(resp)

	return Outcome{
		Records: records,
		Status:  resp.Status,
		Err:     err,
	}
}

// Authenticate performs the AUTH exchange on a persistent connection
// and caches the issued session token. On a stateless transport it
// fails without touching the network: there is no session for a token
// to live in.
func (c *Client) Authenticate(ctx context.Context) error {
	if c.transport.Kind() != transport.KindSession {
		return fmt.Errorf("%w: AUTH requires a persistent connection", protocol.ErrAuthentication)
	}

	command, err := c.auth.AuthCommand()
	if err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrAuthentication, err)
	}

	// The AUTH request itself is sent undecorated.
	resp, err := c.transport.Execute(ctx, command, nil)
	if err != nil {
		return err
	}

	if resp.Status != 200 {
		return fmt.Errorf("%w: %s", protocol.ErrAuthentication, protocol.ExtractErrorMessage(resp.Body))
	}

	match := tokenPattern.FindStringSubmatch(strings.TrimSpace(resp.Body))
	if match == nil {
		return fmt.Errorf("%w: expected OK TOKEN, got %q", protocol.ErrUnexpectedResponse, strings.TrimSpace(resp.Body))
	}

	c.auth.SetSessionToken(match[1], c.auth.UserID())
	c.log.Debug("Authenticated", zap.String("user", c.auth.UserID()))

	return nil
}

// AuthenticatedUser returns the user recorded by the last successful
// AUTH exchange, or "".
func (c *Client) AuthenticatedUser() string {
	return c.auth.AuthenticatedUser()
}

// Close tears down the transport and discards cached auth state.
func (c *Client) Close() error {
	err := c.transport.Close()
	c.auth.Reset()
	return err
}

func (c *Client) send(ctx context.Context, command string) (*transport.Response, error) {
	command = strings.TrimSpace(command)

	if c.transport.Kind() == transport.KindSession {
		formatted, err := c.auth.FormatCommand(command)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", protocol.ErrAuthentication, err)
		}
		return c.transport.Execute(ctx, formatted, nil)
	}

	headers, err := c.auth.Headers(command)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrAuthentication, err)
	}

	return c.transport.Execute(ctx, command, headers)
}

// interpret maps the response status taxonomy onto the error taxonomy.
// Transports never make this call; response semantics are decided here
// and nowhere else.
func (c *Client) interpret(resp *transport.Response) ([]*protocol.Record, error) {
	switch resp.Status {
	case 200:
		return protocol.ParseResponse(resp.Body)

	case 400, 405:
		return nil, fmt.Errorf("%w: %s", protocol.ErrCommand, protocol.ExtractErrorMessage(resp.Body))

	case 401:
		return nil, fmt.Errorf("%w: %s", protocol.ErrAuthentication, protocol.ExtractErrorMessage(resp.Body))

	case 403:
		return nil, fmt.Errorf("%w: %s", protocol.ErrAuthorization, protocol.ExtractErrorMessage(resp.Body))

	case 404:
		return nil, fmt.Errorf("%w: %s", protocol.ErrNotFound, protocol.ExtractErrorMessage(resp.Body))

	case 500, 503:
		return nil, fmt.Errorf("%w: %s", protocol.ErrServer, protocol.ExtractErrorMessage(resp.Body))

	default:
		return nil, fmt.Errorf("%w: unexpected status %d: %s",
			protocol.ErrConnection, resp.Status, strings.TrimSpace(resp.Body))
	}
}
