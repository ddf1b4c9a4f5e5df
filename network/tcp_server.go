package network

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithLimitHook registers a callback run for every line dropped by the rate limiter.
func WithLimitHook(fn func()) Option {
	return func(s *Server) {
		s.onLimit = fn
	}
}

// Server accepts TCP sessions and feeds their lines to a Handler.
type Server struct {
	config   *Config
	handler  Handler
	log      *zap.Logger
	onLimit  func()
	listener net.Listener
	running  int32 // atomic flag

	// Connection management
	connections   map[string]*tcpConnection
	connectionsMu sync.RWMutex

	// Synchronization
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Statistics
	totalConnections   int64
	currentConnections int64
	totalLines         int64
	limitedLines       int64
	startTime          time.Time
}

// NewServer creates a server that reports to handler.
func NewServer(config *Config, handler Handler, opts ...Option) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if handler == nil {
		return nil, fmt.Errorf("network server needs a handler")
	}
	if config.MaxLineLength <= 0 {
		return nil, fmt.Errorf("invalid max line length: %d", config.MaxLineLength)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		config:      config,
		handler:     handler,
		log:         zap.NewNop(),
		connections: make(map[string]*tcpConnection),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start listens and begins accepting sessions.
func (s *Server) Start() error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return ErrServerRunning
	}

	address := net.JoinHostPort(s.config.Address, fmt.Sprint(s.config.Port))
	listener, err := net.Listen("tcp", address)
	if err != nil {
		atomic.StoreInt32(&s.running, 0)
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	s.listener = listener
	s.startTime = time.Now()

	s.wg.Add(1)
	go s.acceptLoop()

	s.log.Info("tcp server started", zap.Stringer("addr", listener.Addr()))
	return nil
}

// Stop closes the listener and every session, then waits for handlers to return.
func (s *Server) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return nil
	}

	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}

	for _, conn := range s.snapshot() {
		conn.Close()
	}

	s.wg.Wait()

	s.log.Info("tcp server stopped")
	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Connections returns the live sessions ordered by ID.
func (s *Server) Connections() []Connection {
	conns := s.snapshot()
	out := make([]Connection, len(conns))
	for i, c := range conns {
		out[i] = c
	}
	return out
}

// ConnectionCount returns the number of active connections
func (s *Server) ConnectionCount() int {
	return int(atomic.LoadInt64(&s.currentConnections))
}

// Statistics returns server statistics
func (s *Server) Statistics() ServerStatistics {
	stats := ServerStatistics{
		Running:            atomic.LoadInt32(&s.running) == 1,
		StartTime:          s.startTime,
		TotalConnections:   atomic.LoadInt64(&s.totalConnections),
		CurrentConnections: atomic.LoadInt64(&s.currentConnections),
		TotalLines:         atomic.LoadInt64(&s.totalLines),
		LimitedLines:       atomic.LoadInt64(&s.limitedLines),
	}
	if addr := s.Addr(); addr != nil {
		stats.Address = addr.String()
	}
	if !s.startTime.IsZero() {
		stats.Uptime = time.Since(s.startTime)
	}
	return stats
}

// acceptLoop accepts incoming connections
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept failed", zap.Error(err))
			continue
		}

		if s.config.MaxConnections > 0 && atomic.LoadInt64(&s.currentConnections) >= int64(s.config.MaxConnections) {
			s.log.Warn("connection limit reached",
				zap.Int("max", s.config.MaxConnections),
				zap.Stringer("remote", conn.RemoteAddr()),
			)
			conn.Close()
			continue
		}

		if tcpConn, ok := conn.(*net.TCPConn); ok && s.config.KeepAlive {
			tcpConn.SetKeepAlive(true)
			tcpConn.SetKeepAlivePeriod(s.config.KeepAliveInterval)
		}

		connection := newTCPConnection(conn, s.config)
		s.addConnection(connection)
		atomic.AddInt64(&s.totalConnections, 1)

		// Stop may have taken its snapshot already
		if s.ctx.Err() != nil {
			connection.Close()
		}

		s.wg.Add(1)
		go s.handleConnection(connection)
	}
}

// handleConnection reads lines for a single connection until it fails or closes.
func (s *Server) handleConnection(conn *tcpConnection) {
	defer s.wg.Done()
	defer s.removeConnection(conn.ID())
	defer conn.Close()

	s.log.Debug("session opened", zap.String("conn", conn.ID()), zap.Stringer("remote", conn.RemoteAddr()))
	s.handler.OnConnect(conn)

	scanner := bufio.NewScanner(conn.conn)
	scanner.Buffer(make([]byte, 0, 512), s.config.MaxLineLength)

	var err error
	for {
		if s.config.ReadTimeout > 0 {
			conn.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}
		if !scanner.Scan() {
			err = scanner.Err()
			break
		}

		raw := scanner.Text()
		conn.read(len(raw))
		atomic.AddInt64(&s.totalLines, 1)

		if !conn.allow() {
			atomic.AddInt64(&s.limitedLines, 1)
			if s.onLimit != nil {
				s.onLimit()
			}
			conn.Send(s.config.LimitMessage)
			continue
		}

		s.handler.OnLine(conn, raw)
	}

	if conn.isClosed() || errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		err = nil
	}
	s.log.Debug("session closed", zap.String("conn", conn.ID()), zap.Error(err))
	s.handler.OnDisconnect(conn, err)
}

// addConnection adds a connection to the server
func (s *Server) addConnection(conn *tcpConnection) {
	s.connectionsMu.Lock()
	defer s.connectionsMu.Unlock()

	s.connections[conn.ID()] = conn
	atomic.AddInt64(&s.currentConnections, 1)
}

// removeConnection removes a connection from the server
func (s *Server) removeConnection(connID string) {
	s.connectionsMu.Lock()
	defer s.connectionsMu.Unlock()

	if _, exists := s.connections[connID]; exists {
		delete(s.connections, connID)
		atomic.AddInt64(&s.currentConnections, -1)
	}
}

func (s *Server) snapshot() []*tcpConnection {
	s.connectionsMu.RLock()
	conns := make([]*tcpConnection, 0, len(s.connections))
	for _, c := range s.connections {
		conns = append(conns, c)
	}
	s.connectionsMu.RUnlock()

	sort.Slice(conns, func(i, j int) bool { return conns[i].id < conns[j].id })
	return conns
}

// ServerStatistics holds statistics for a server
type ServerStatistics struct {
	Address            string        `json:"address"`
	Running            bool          `json:"running"`
	StartTime          time.Time     `json:"start_time"`
	Uptime             time.Duration `json:"uptime"`
	TotalConnections   int64         `json:"total_connections"`
	CurrentConnections int64         `json:"current_connections"`
	TotalLines         int64         `json:"total_lines"`
	LimitedLines       int64         `json:"limited_lines"`
}

// String returns the string representation of server statistics
func (ss ServerStatistics) String() string {
	return fmt.Sprintf("Server[%s] Running=%t Uptime=%s Connections=%d/%d Lines=%d Limited=%d",
		ss.Address, ss.Running, ss.Uptime.Truncate(time.Second),
		ss.CurrentConnections, ss.TotalConnections, ss.TotalLines, ss.LimitedLines)
}
