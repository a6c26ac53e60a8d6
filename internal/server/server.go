// Package server implements C10: the WebSocket accept loop, connection cap,
// and ordered shutdown described in spec §4.14. Its transport plumbing is
// adapted from the teacher's proxy.Server — one upgraded *websocket.Conn per
// client, a liveness ping/pong deadline, and a sync.Map of live connections —
// generalized to dispatch through connection.Handler instead of a BiDi
// router.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/auxproto/auxd/internal/browsermanager"
	"github.com/auxproto/auxd/internal/connection"
	"github.com/auxproto/auxd/internal/sessionlog"
)

// Options configures the accept loop's transport-level knobs, per
// server.{ping_interval, ping_timeout, max_message_size, max_concurrent_connections}
// in spec §6.4.
type Options struct {
	Host                  string
	Port                  int
	MaxConcurrentConns    int
	PingInterval          time.Duration
	PingTimeout           time.Duration
	MaxMessageSize        int64
}

func DefaultOptions() Options {
	return Options{
		Host:               "localhost",
		Port:               8080,
		MaxConcurrentConns: 50,
		PingInterval:       20 * time.Second,
		PingTimeout:        10 * time.Second,
		MaxMessageSize:     1_048_576,
	}
}

// Server is C10.
type Server struct {
	opts       Options
	deps       connection.Deps
	logger     *sessionlog.Logger
	upgrader   websocket.Upgrader
	httpServer *http.Server
	listener   net.Listener

	connCount atomic.Int64
	nextID    atomic.Uint64
	conns     sync.Map // map[uint64]*wsConn

	closing atomic.Bool
}

func New(opts Options, deps connection.Deps, logger *sessionlog.Logger) *Server {
	return &Server{
		opts: opts,
		deps: deps,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  int(opts.MaxMessageSize),
			WriteBufferSize: int(opts.MaxMessageSize),
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Start initializes the browser manager, launches its expiry sweep, and
// begins accepting connections. Port 0 lets the OS assign a free port;
// Port() reports the bound port afterward.
func (s *Server) Start(ctx context.Context) error {
	if err := s.deps.Manager.Initialize(ctx); err != nil {
		return fmt.Errorf("server: manager init: %w", err)
	}
	s.deps.Manager.StartSweep(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebSocket)

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.opts.Port = listener.Addr().(*net.TCPAddr).Port

	s.httpServer = &http.Server{Handler: mux}
	go s.httpServer.Serve(listener)
	return nil
}

func (s *Server) Port() int { return s.opts.Port }

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.closing.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	if s.opts.MaxConcurrentConns > 0 && s.connCount.Load() >= int64(s.opts.MaxConcurrentConns) {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(s.opts.MaxMessageSize)

	wc := &wsConn{
		id:         s.nextID.Add(1),
		conn:       conn,
		remoteAddr: r.RemoteAddr,
	}
	s.connCount.Add(1)
	s.conns.Store(wc.id, wc)

	handler := connection.NewHandler(s.deps, wc)
	s.serveConn(wc, handler)
}

// serveConn runs the read loop for one connection, adapted from the
// teacher's handleClient: a pong handler extends the read deadline on every
// liveness response, and a dead/closed transport ends the loop.
func (s *Server) serveConn(wc *wsConn, handler *connection.Handler) {
	defer func() {
		s.connCount.Add(-1)
		s.conns.Delete(wc.id)
		wc.Close()
		handler.Close(context.Background())
	}()

	wc.conn.SetPongHandler(func(string) error {
		wc.conn.SetReadDeadline(time.Now().Add(s.opts.PingInterval + s.opts.PingTimeout))
		return nil
	})

	go s.pingLoop(wc)

	for {
		wc.conn.SetReadDeadline(time.Now().Add(s.opts.PingInterval + s.opts.PingTimeout))
		msgType, msg, err := wc.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		handler.HandleMessage(context.Background(), string(msg))
	}
}

func (s *Server) pingLoop(wc *wsConn) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()
	for range ticker.C {
		if wc.Closed() {
			return
		}
		if err := wc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.opts.PingTimeout)); err != nil {
			return
		}
	}
}

// Stop implements the ordered shutdown from spec §4.14: refuse new
// connections, close every live connection, shut down the manager (which
// closes every browser session), then shut down the HTTP server. It does not
// wait for commands already being handled to finish before closing their
// connections and sessions.
func (s *Server) Stop(ctx context.Context) error {
	s.closing.Store(true)

	var wg sync.WaitGroup
	s.conns.Range(func(_, v interface{}) bool {
		wc := v.(*wsConn)
		wg.Add(1)
		go func() {
			defer wg.Done()
			wc.Close()
		}()
		return true
	})
	wg.Wait()

	s.deps.Manager.Shutdown(ctx)

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Stats exposes the manager's stats alongside the connection count.
func (s *Server) Stats() (browsermanager.Stats, int64) {
	return s.deps.Manager.Stats(), s.connCount.Load()
}

// wsConn adapts *websocket.Conn to connection.Transport.
type wsConn struct {
	id         uint64
	conn       *websocket.Conn
	remoteAddr string

	mu     sync.Mutex
	closed bool
}

func (c *wsConn) ID() uint64         { return c.id }
func (c *wsConn) RemoteAddr() string { return c.remoteAddr }

func (c *wsConn) Send(msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("server: connection closed")
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

func (c *wsConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
