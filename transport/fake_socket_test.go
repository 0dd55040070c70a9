package transport_test

import (
	"context"
	"io"
	"sync"
)

// fakeSocket is a scriptable transport.Socket. It records every Send
// and delivers whatever Respond pushes, so tests control the exact
// interleaving of commands and responses.
type fakeSocket struct {
	mu          sync.Mutex
	sent        []string
	incoming    chan []byte
	connectErr  error
	sendErr     error
	connectGate chan struct{}
	connects    int
	closes      int
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{}
}

func (s *fakeSocket) Connect(ctx context.Context) error {
	s.mu.Lock()
	s.connects++
	gate := s.connectGate
	err := s.connectErr
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err != nil {
		return err
	}

	s.mu.Lock()
	s.incoming = make(chan []byte, 16)
	s.mu.Unlock()
	return nil
}

func (s *fakeSocket) Send(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sendErr != nil {
		return s.sendErr
	}

	s.sent = append(s.sent, string(p))
	return nil
}

func (s *fakeSocket) Read() ([]byte, error) {
	s.mu.Lock()
	incoming := s.incoming
	s.mu.Unlock()

	p, ok := <-incoming
	if !ok {
		return nil, io.EOF
	}
	return p, nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closes++

	if s.incoming != nil {
		close(s.incoming)
		s.incoming = nil
	}
	return nil
}

// Respond delivers one complete server message.
func (s *fakeSocket) Respond(body string) {
	s.mu.Lock()
	incoming := s.incoming
	s.mu.Unlock()

	incoming <- []byte(body)
}

// Sent returns a copy of everything written so far.
func (s *fakeSocket) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *fakeSocket) SentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *fakeSocket) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

func (s *fakeSocket) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func (s *fakeSocket) SetConnectErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectErr = err
}

func (s *fakeSocket) SetSendErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendErr = err
}

// GateConnect makes every Connect block until ReleaseConnect is called.
func (s *fakeSocket) GateConnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectGate = make(chan struct{})
}

func (s *fakeSocket) ReleaseConnect() {
	s.mu.Lock()
	gate := s.connectGate
	s.connectGate = nil
	s.mu.Unlock()

	if gate != nil {
		close(gate)
	}
}
