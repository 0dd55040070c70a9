// Package devserver is a local stand-in for the event-store server,
// good enough to exercise every transport and response encoding the
// client supports. It is a development tool: it enforces the AUTH
// exchange when a secret is configured but is otherwise permissive.
package devserver

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	reuseport "github.com/kavu/go_reuseport"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/beacon/protocol"
)

var hexSignature = regexp.MustCompile(`^[0-9a-f]{64}$`)

type Options struct {
	// Host to listen on
	Host string

	// HTTPPort serves POST /command and GET /ws
	HTTPPort string

	// TCPPort serves the raw line protocol
	TCPPort int

	// UserID and SecretKey enable AUTH verification when both are set
	UserID    string
	SecretKey string

	Store *Store

	Log *zap.Logger
}

type Server struct {
	options Options
	store   *Store
	log     *zap.Logger

	mu     sync.Mutex
	tokens map[string]string

	httpServer *http.Server
	listener   net.Listener
	cancel     context.CancelFunc
	waiter     sync.WaitGroup
}

func New(options Options) *Server {
	store := options.Store
	if store == nil {
		store = NewStore()
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &Server{
		options: options,
		store:   store,
		log:     log.Named("devserver"),
		tokens:  map[string]string{},
	}
}

// Start brings up the HTTP surface and the TCP listener. It returns
// once both are listening; Close tears them down.
func (s *Server) Start(parentCtx context.Context) error {
	ctx, cancel := context.WithCancel(parentCtx)
	s.cancel = cancel

	router := s.setupRouter()

	s.httpServer = &http.Server{
		Addr:    net.JoinHostPort(s.options.Host, s.options.HTTPPort),
		Handler: router,
	}

	listener, err := reuseport.Listen("tcp", net.JoinHostPort(s.options.Host, strconv.Itoa(s.options.TCPPort)))
	if err != nil {
		cancel()
		return err
	}
	s.listener = listener

	s.waiter.Add(2)

	go func() {
		defer s.waiter.Done()

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Http server errored", zap.Error(err))
		}
	}()

	go func() {
		defer s.waiter.Done()
		s.acceptLoop(ctx)
	}()

	s.log.Info("Dev server listening",
		zap.String("host", s.options.Host),
		zap.String("httpPort", s.options.HTTPPort),
		zap.Int("tcpPort", s.options.TCPPort))

	return nil
}

func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}

	var err error

	if s.listener != nil {
		err = multierr.Append(err, s.listener.Close())
	}

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = multierr.Append(err, s.httpServer.Shutdown(shutdownCtx))
	}

	s.waiter.Wait()

	return err
}

func (s *Server) setupRouter() *gin.Engine {
	gin.DisableConsoleColor()
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(ginzap.Ginzap(s.log, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(s.log, true))

	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	router.POST("/command", func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.String(http.StatusBadRequest, "ERROR: unreadable body")
			return
		}

		status, response := s.Handle(string(body))
		c.String(status, response)
	})

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}

	router.GET("/ws", func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		s.serveWebsocket(conn)
	})

	return router
}

func (s *Server) acceptLoop(ctx context.Context) {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}

			s.log.Warn("Accept failed", zap.Error(err))
			return
		}

		s.waiter.Add(1)
		go func() {
			defer s.waiter.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

// serveConn answers the raw line protocol: one command per line, one
// write per response so a client read sees a complete response.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		_, body := s.Handle(scanner.Text())

		if _, err := conn.Write([]byte(body + "\n")); err != nil {
			s.log.Warn("Failed to write response", zap.Error(err))
			return
		}
	}
}

func (s *Server) serveWebsocket(conn *websocket.Conn) {
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}

		_, body := s.Handle(string(message))

		if err := conn.WriteMessage(websocket.TextMessage, []byte(body)); err != nil {
			return
		}
	}
}

// Handle runs one command and returns the HTTP status plus the response
// body. Socket callers send the body alone; its first line carries the
// same status for the client to classify.
func (s *Server) Handle(command string) (int, string) {
	command, ok := s.stripAuth(strings.TrimSpace(command))
	if !ok {
		return 401, "401 authentication failed"
	}

	verb := command
	rest := ""
	if idx := strings.IndexByte(command, ' '); idx >= 0 {
		verb = command[:idx]
		rest = strings.TrimSpace(command[idx+1:])
	}

	switch verb {
	case "PING":
		return 200, "OK"

	case "AUTH":
		return s.handleAuth(rest)

	case "APPEND":
		return s.handleAppend(rest)

	case "SCAN":
		return s.handleScan(rest)

	default:
		return 400, fmt.Sprintf("ERROR: unknown command %q", verb)
	}
}

func (s *Server) handleAuth(args string) (int, string) {
	parts := strings.SplitN(args, ":", 2)
	if len(parts) != 2 {
		return 400, "ERROR: AUTH expects <user>:<signature>"
	}

	user, signature := parts[0], parts[1]

	if s.options.SecretKey != "" {
		expected, err := protocol.Sign(s.options.SecretKey, user)
		if err != nil || user != s.options.UserID || signature != expected {
			return 401, "401 authentication failed"
		}
	}

	token := newToken()

	s.mu.Lock()
	s.tokens[token] = user
	s.mu.Unlock()

	return 200, fmt.Sprintf("OK TOKEN %s", token)
}

func (s *Server) handleAppend(args string) (int, string) {
	parts := strings.SplitN(args, " ", 2)
	if len(parts) != 2 {
		return 400, "ERROR: APPEND expects <stream> <event>"
	}

	if err := s.store.Append(parts[0], []byte(parts[1])); err != nil {
		return 400, fmt.Sprintf("ERROR: %v", err)
	}

	return 200, "OK"
}

// handleScan streams a whole stream back as schema/row/end frames.
func (s *Server) handleScan(stream string) (int, string) {
	if stream == "" {
		return 400, "ERROR: SCAN expects <stream>"
	}

	var b strings.Builder
	b.WriteString("200 OK\n")
	b.WriteString(`{"type":"schema","columns":["position","event"]}` + "\n")

	for i, event := range s.store.Scan(stream) {
		b.WriteString(fmt.Sprintf(`{"type":"row","values":[%d,%s]}`, i, event))
		b.WriteByte('\n')
	}

	b.WriteString(`{"type":"end"}`)

	return 200, b.String()
}

// stripAuth removes the token suffix or signature prefixes a client
// attaches over a persistent connection. It reports false for an
// unknown token.
func (s *Server) stripAuth(command string) (string, bool) {
	if idx := strings.LastIndex(command, " TOKEN "); idx >= 0 {
		token := strings.TrimSpace(command[idx+len(" TOKEN "):])

		s.mu.Lock()
		_, known := s.tokens[token]
		s.mu.Unlock()

		return command[:idx], known
	}

	// user:signature:command
	if parts := strings.SplitN(command, ":", 3); len(parts) == 3 && hexSignature.MatchString(parts[1]) {
		return parts[2], true
	}

	// signature:command
	if parts := strings.SplitN(command, ":", 2); len(parts) == 2 && hexSignature.MatchString(parts[0]) {
		return parts[1], true
	}

	return command, true
}

func newToken() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
