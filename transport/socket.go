package transport

import (
	"context"
	"crypto/tls"
	"net"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
)

// Socket is the minimal connection primitive a Session drives: connect,
// write one message, block for the next message, close. Implementations
// must support Connect again after Close so a session can reconnect.
type Socket interface {
	Connect(ctx context.Context) error

	// Send writes one complete message to the peer.
	Send(p []byte) error

	// Read blocks until the next message arrives. It returns an error
	// once the connection closes or fails.
	Read() ([]byte, error)

	Close() error
}

// -----------------------------------------------------------
// Raw TCP socket
// -----------------------------------------------------------

// tcpSocket treats every chunk returned by a single conn.Read as one
// message. A response fragmented across reads by an intermediary would
// be misdelivered; see Session for the discussion of this assumption.
type tcpSocket struct {
	addr      string
	secure    bool
	tlsConfig *tls.Config

	mu   sync.Mutex
	conn net.Conn
}

func newTCPSocket(addr string, secure bool, options Options) *tcpSocket {
	return &tcpSocket{
		addr:      addr,
		secure:    secure,
		tlsConfig: options.TLSConfig,
	}
}

func (s *tcpSocket) Connect(ctx context.Context) error {
	dialer := net.Dialer{}

	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}

	if s.secure {
		config := s.tlsConfig
		if config == nil {
			host, _, splitErr := net.SplitHostPort(s.addr)
			if splitErr != nil {
				host = s.addr
			}
			config = &tls.Config{ServerName: host}
		}

		tlsConn := tls.Client(conn, config)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return err
		}
		conn = tlsConn
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	return nil
}

func (s *tcpSocket) Send(p []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return net.ErrClosed
	}

	_, err := conn.Write(p)
	return err
}

func (s *tcpSocket) Read() ([]byte, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil, net.ErrClosed
	}

	buf := make([]byte, 64*1024)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, err
	}

	return buf[:n], nil
}

func (s *tcpSocket) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}

	return conn.Close()
}

// -----------------------------------------------------------
// WebSocket socket
// -----------------------------------------------------------

type wsSocket struct {
	url       string
	tlsConfig *tls.Config

	mu   sync.Mutex
	conn *websocket.Conn
}

func newWebsocketSocket(u *url.URL, options Options) *wsSocket {
	return &wsSocket{
		url:       u.String(),
		tlsConfig: options.TLSConfig,
	}
}

func (s *wsSocket) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		TLSClientConfig: s.tlsConfig,
	}

	conn, resp, err := dialer.DialContext(ctx, s.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	return nil
}

func (s *wsSocket) Send(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return net.ErrClosed
	}

	return s.conn.WriteMessage(websocket.TextMessage, p)
}

func (s *wsSocket) Read() ([]byte, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil, net.ErrClosed
	}

	// Binary payloads come back as-is and are treated as UTF-8 text by
	// the session's buffer.
	_, p, err := conn.ReadMessage()
	return p, err
}

func (s *wsSocket) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}

	return conn.Close()
}
