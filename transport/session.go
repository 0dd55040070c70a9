package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/luma/beacon/protocol"
	"go.uber.org/zap"
)

type sessionState int

const (
	stateDisconnected sessionState = iota
	stateConnecting
	stateConnected
	stateClosed
)

// result is what a waiting caller eventually receives.
type result struct {
	resp *Response
	err  error
}

// pendingRequest tracks one command from enqueue until its response
// arrives, its timeout fires, or the connection dies.
type pendingRequest struct {
	command string
	done    chan result
	buf     strings.Builder
	timer   *time.Timer
}

// delivery pairs a resolved request with its result so completions can
// be handed over outside the session lock.
type delivery struct {
	req *pendingRequest
	res result
}

// Session is the persistent transport: a single socket, a FIFO queue of
// pending commands, and at most one request in flight at a time.
// Responses are correlated to requests purely by this ordering, never
// by content.
//
// One inbound socket message is assumed to be one complete response.
// The first line of the message classifies the synthetic status. An
// intermediary that fragments a response across messages would break
// this; the end frame of the streaming encoding would be the signal to
// build a stricter completion rule on, should that ever happen.
type Session struct {
	socket  Socket
	options Options
	log     *zap.Logger

	mu          sync.Mutex
	state       sessionState
	connectDone chan struct{}
	connectErr  error
	readerGen   int
	queue       []*pendingRequest
	active      *pendingRequest

	commands *metrics.Counter
	failures *metrics.Counter
}

// NewSession wraps a socket in the queueing discipline. The socket is
// not connected until the first Execute.
func NewSession(socket Socket, options Options) *Session {
	options = options.withDefaults()

	return &Session{
		socket:   socket,
		options:  options,
		log:      options.Log.Named("session"),
		commands: metrics.GetOrCreateCounter(`beacon_commands_total{transport="session"}`),
		failures: metrics.GetOrCreateCounter(`beacon_command_errors_total{transport="session"}`),
	}
}

// Execute enqueues a command and blocks until its response arrives. On
// a live connection commands are written strictly in Execute order, one
// at a time. Headers are ignored: persistent connections carry
// credentials in the command text itself.
func (s *Session) Execute(ctx context.Context, command string, headers map[string]string) (*Response, error) {
	s.commands.Inc()

	req := &pendingRequest{
		command: command,
		done:    make(chan result, 1),
	}

	for {
		if err := s.ensureConnected(ctx); err != nil {
			s.failures.Inc()
			return nil, err
		}

		s.mu.Lock()
		if s.state != stateConnected {
			// Lost the connection between connect and enqueue.
			s.mu.Unlock()
			continue
		}

		s.queue = append(s.queue, req)
		deliveries := s.pumpLocked()
		s.mu.Unlock()

		s.deliver(deliveries)
		break
	}

	select {
	case r := <-req.done:
		if r.err != nil {
			s.failures.Inc()
		}
		return r.resp, r.err

	case <-ctx.Done():
		// The command may already be on the wire; cancellation only
		// fails the local waiter. If it was still queued nothing was
		// sent at all.
		s.abandon(req)
		s.failures.Inc()
		return nil, fmt.Errorf("%w: %v", protocol.ErrConnection, ctx.Err())
	}
}

// Close flushes and rejects every queued and active request, closes the
// socket, and discards connect state. A later Execute reconnects from
// scratch.
func (s *Session) Close() error {
	s.mu.Lock()

	if s.state == stateClosed {
		s.mu.Unlock()
		return nil
	}

	s.state = stateClosed
	s.readerGen++
	deliveries := s.failAllLocked(fmt.Errorf("%w: transport closed", protocol.ErrConnection))
	s.mu.Unlock()

	s.deliver(deliveries)

	return s.socket.Close()
}

func (s *Session) Kind() Kind {
	return KindSession
}

// ensureConnected brings the socket up, coalescing concurrent attempts:
// a caller arriving while another connect is in flight waits for that
// attempt instead of opening a second socket.
func (s *Session) ensureConnected(ctx context.Context) error {
	for {
		s.mu.Lock()

		switch s.state {
		case stateConnected:
			s.mu.Unlock()
			return nil

		case stateConnecting:
			done := s.connectDone
			s.mu.Unlock()

			select {
			case <-done:
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", protocol.ErrConnection, ctx.Err())
			}

			// Share the attempt's outcome: a coalesced waiter never
			// starts a second attempt on failure.
			s.mu.Lock()
			state, connectErr := s.state, s.connectErr
			s.mu.Unlock()

			if state == stateConnected {
				return nil
			}
			if connectErr != nil {
				return connectErr
			}
			continue

		default:
			// Disconnected or Closed: this caller runs the attempt.
			done := make(chan struct{})
			s.state = stateConnecting
			s.connectDone = done
			s.connectErr = nil
			s.mu.Unlock()

			err := s.connect(ctx)

			s.mu.Lock()
			if err != nil && s.state == stateConnecting {
				s.state = stateDisconnected
			}
			s.connectErr = err
			close(done)
			s.mu.Unlock()

			if err != nil {
				return err
			}
			continue
		}
	}
}

func (s *Session) connect(ctx context.Context) error {
	connectCtx, cancel := context.WithTimeout(ctx, s.options.ConnectTimeout)
	defer cancel()

	if err := s.socket.Connect(connectCtx); err != nil {
		if connectCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: connect timed out after %s", protocol.ErrConnection, s.options.ConnectTimeout)
		}
		return fmt.Errorf("%w: %v", protocol.ErrConnection, err)
	}

	s.mu.Lock()
	if s.state == stateClosed {
		// Closed while the dial was in flight.
		s.mu.Unlock()
		s.socket.Close()
		return fmt.Errorf("%w: transport closed", protocol.ErrConnection)
	}

	s.state = stateConnected
	s.readerGen++
	gen := s.readerGen
	s.mu.Unlock()

	s.log.Debug("Connected")

	go s.readLoop(gen)

	return nil
}

// readLoop pulls messages off the socket until it errors. gen ties the
// loop to one connection so a stale loop from before a reconnect cannot
// touch the queue.
func (s *Session) readLoop(gen int) {
	for {
		p, err := s.socket.Read()
		if err != nil {
			s.handleDisconnect(gen, err)
			return
		}

		s.handleMessage(gen, p)
	}
}

// handleMessage appends one socket message to the active request's
// buffer and completes the request as soon as a status can be
// classified, which with the one-message-one-response assumption is
// immediately.
func (s *Session) handleMessage(gen int, p []byte) {
	s.mu.Lock()

	if gen != s.readerGen || s.state != stateConnected {
		s.mu.Unlock()
		return
	}

	req := s.active
	if req == nil {
		s.mu.Unlock()
		s.log.Warn("Dropping response with no request in flight",
			zap.Int("bytes", len(p)))
		return
	}

	req.buf.Write(p)
	body := req.buf.String()

	if req.timer != nil {
		req.timer.Stop()
	}
	s.active = nil

	deliveries := []delivery{{
		req: req,
		res: result{resp: &Response{
			Status:  protocol.StatusFromBody(body),
			Body:    strings.TrimSpace(body),
			Headers: map[string]string{},
		}},
	}}
	deliveries = append(deliveries, s.pumpLocked()...)
	s.mu.Unlock()

	s.deliver(deliveries)
}

// handleDisconnect fails the active request and drains the whole queue.
// There is no partial success: everything waiting gets a connection
// error.
func (s *Session) handleDisconnect(gen int, cause error) {
	s.mu.Lock()

	if gen != s.readerGen || s.state == stateClosed {
		s.mu.Unlock()
		return
	}

	s.state = stateDisconnected

	err := fmt.Errorf("%w: connection error: %v", protocol.ErrConnection, cause)
	if isClosedConn(cause) {
		err = fmt.Errorf("%w: connection closed", protocol.ErrConnection)
	}

	deliveries := s.failAllLocked(err)
	s.mu.Unlock()

	s.log.Warn("Connection lost", zap.Error(cause))
	s.deliver(deliveries)
}

// pumpLocked starts the next command when the connection is up and
// nothing is in flight. It returns any requests that failed on write so
// the caller can notify them outside the lock.
func (s *Session) pumpLocked() []delivery {
	if s.state != stateConnected || s.active != nil || len(s.queue) == 0 {
		return nil
	}

	req := s.queue[0]
	s.queue = s.queue[1:]
	s.active = req

	req.timer = time.AfterFunc(s.options.RequestTimeout, func() {
		s.timeout(req)
	})

	payload := req.command
	if !strings.HasSuffix(payload, "\n") {
		payload += "\n"
	}

	if err := s.socket.Send([]byte(payload)); err != nil {
		req.timer.Stop()
		s.active = nil
		s.state = stateDisconnected
		s.readerGen++
		s.socket.Close()

		failure := fmt.Errorf("%w: writing command: %v", protocol.ErrConnection, err)
		deliveries := []delivery{{req: req, res: result{err: failure}}}
		return append(deliveries, s.failAllLocked(failure)...)
	}

	return nil
}

// timeout fails the active request locally and advances the queue. The
// command cannot be un-sent; a late response would be dropped by
// handleMessage finding no active request.
func (s *Session) timeout(req *pendingRequest) {
	s.mu.Lock()

	if s.active != req {
		s.mu.Unlock()
		return
	}

	s.active = nil
	deliveries := []delivery{{
		req: req,
		res: result{err: fmt.Errorf("%w: request timed out after %s", protocol.ErrConnection, s.options.RequestTimeout)},
	}}
	deliveries = append(deliveries, s.pumpLocked()...)
	s.mu.Unlock()

	s.deliver(deliveries)
}

// abandon removes a cancelled request from the queue, or fails it in
// place when it is already on the wire, advancing to the next command.
func (s *Session) abandon(req *pendingRequest) {
	s.mu.Lock()

	for i, queued := range s.queue {
		if queued == req {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			s.mu.Unlock()
			return
		}
	}

	var deliveries []delivery
	if s.active == req {
		if req.timer != nil {
			req.timer.Stop()
		}
		s.active = nil
		deliveries = s.pumpLocked()
	}
	s.mu.Unlock()

	s.deliver(deliveries)
}

// failAllLocked rejects the active request and every queued one,
// clearing the queue. Must be called with the lock held.
func (s *Session) failAllLocked(err error) []delivery {
	var deliveries []delivery

	if s.active != nil {
		if s.active.timer != nil {
			s.active.timer.Stop()
		}
		deliveries = append(deliveries, delivery{req: s.active, res: result{err: err}})
		s.active = nil
	}

	for _, req := range s.queue {
		deliveries = append(deliveries, delivery{req: req, res: result{err: err}})
	}
	s.queue = nil

	return deliveries
}

// deliver hands results to their waiters. done channels are buffered so
// this never blocks, even for a waiter that already gave up.
func (s *Session) deliver(deliveries []delivery) {
	for _, d := range deliveries {
		select {
		case d.req.done <- d.res:
		default:
		}
	}
}

func isClosedConn(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection reset") || strings.Contains(msg, "websocket: close")
}
