package network

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// tcpConnection implements the Connection interface for TCP connections
type tcpConnection struct {
	id           string
	conn         net.Conn
	state        int32 // ConnectionState as atomic int32
	writeTimeout time.Duration
	lastActivity int64 // Unix timestamp as atomic int64
	limiter      *rate.Limiter

	// Synchronization
	mu       sync.RWMutex
	userData any
	closed   int32 // atomic flag
	sendChan chan string
	done     chan struct{}
	finished chan struct{}

	// Statistics
	bytesRead    int64
	bytesWritten int64
	linesRead    int64
	linesSent    int64
}

// connectionIDCounter generates unique connection IDs
var connectionIDCounter int64

// newTCPConnection wraps conn and starts its writer.
func newTCPConnection(conn net.Conn, cfg *Config) *tcpConnection {
	id := fmt.Sprintf("tcp-%d", atomic.AddInt64(&connectionIDCounter, 1))

	queue := cfg.SendQueue
	if queue <= 0 {
		queue = DefaultConfig().SendQueue
	}

	tc := &tcpConnection{
		id:           id,
		conn:         conn,
		state:        int32(ConnectionStateConnected),
		writeTimeout: cfg.WriteTimeout,
		lastActivity: time.Now().Unix(),
		sendChan:     make(chan string, queue),
		done:         make(chan struct{}),
		finished:     make(chan struct{}),
	}
	if cfg.LineRate > 0 {
		burst := cfg.LineBurst
		if burst <= 0 {
			burst = 1
		}
		tc.limiter = rate.NewLimiter(rate.Limit(cfg.LineRate), burst)
	}

	go tc.sendLoop()

	return tc
}

// ID returns the connection ID
func (tc *tcpConnection) ID() string {
	return tc.id
}

// RemoteAddr returns the remote address
func (tc *tcpConnection) RemoteAddr() net.Addr {
	return tc.conn.RemoteAddr()
}

// Send queues line. It waits for room in the queue rather than reordering lines.
func (tc *tcpConnection) Send(line string) error {
	if tc.isClosed() {
		return fmt.Errorf("%s: %w", tc.id, ErrConnectionClosed)
	}

	select {
	case tc.sendChan <- line:
		return nil
	case <-tc.done:
		return fmt.Errorf("%s: %w", tc.id, ErrConnectionClosed)
	}
}

// Close flushes queued lines and closes the socket. It is safe to call more than once.
func (tc *tcpConnection) Close() error {
	if !atomic.CompareAndSwapInt32(&tc.closed, 0, 1) {
		return nil
	}
	atomic.StoreInt32(&tc.state, int32(ConnectionStateClosed))

	close(tc.done)
	<-tc.finished
	return nil
}

// State returns the current connection state
func (tc *tcpConnection) State() ConnectionState {
	return ConnectionState(atomic.LoadInt32(&tc.state))
}

// LastActivity returns the last activity timestamp
func (tc *tcpConnection) LastActivity() time.Time {
	return time.Unix(atomic.LoadInt64(&tc.lastActivity), 0)
}

// UserData returns user-defined data
func (tc *tcpConnection) UserData() any {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.userData
}

// SetUserData sets user-defined data
func (tc *tcpConnection) SetUserData(data any) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.userData = data
}

// Statistics returns connection statistics
func (tc *tcpConnection) Statistics() ConnectionStatistics {
	return ConnectionStatistics{
		ConnectionID: tc.id,
		State:        tc.State(),
		BytesRead:    atomic.LoadInt64(&tc.bytesRead),
		BytesWritten: atomic.LoadInt64(&tc.bytesWritten),
		LinesRead:    atomic.LoadInt64(&tc.linesRead),
		LinesSent:    atomic.LoadInt64(&tc.linesSent),
		LastActivity: tc.LastActivity(),
		RemoteAddr:   tc.RemoteAddr().String(),
	}
}

// allow reports whether another inbound line fits the rate limit.
func (tc *tcpConnection) allow() bool {
	return tc.limiter == nil || tc.limiter.Allow()
}

// read records an inbound line of n bytes.
func (tc *tcpConnection) read(n int) {
	atomic.AddInt64(&tc.bytesRead, int64(n))
	atomic.AddInt64(&tc.linesRead, 1)
	tc.updateActivity()
}

// isClosed checks if the connection is closed
func (tc *tcpConnection) isClosed() bool {
	return atomic.LoadInt32(&tc.closed) != 0
}

// sendLoop writes queued lines until Close, then flushes what is left.
func (tc *tcpConnection) sendLoop() {
	defer close(tc.finished)
	defer tc.conn.Close()

	for {
		select {
		case line := <-tc.sendChan:
			if err := tc.write(line); err != nil {
				tc.abort()
				return
			}
		case <-tc.done:
			for {
				select {
				case line := <-tc.sendChan:
					if err := tc.write(line); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// abort marks the connection closed after a write failure without waiting
// for the writer, which is the caller.
func (tc *tcpConnection) abort() {
	if atomic.CompareAndSwapInt32(&tc.closed, 0, 1) {
		atomic.StoreInt32(&tc.state, int32(ConnectionStateClosed))
		close(tc.done)
	}
}

// write sends one line with its terminator.
func (tc *tcpConnection) write(line string) error {
	if tc.writeTimeout > 0 {
		if err := tc.conn.SetWriteDeadline(time.Now().Add(tc.writeTimeout)); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}

	n, err := tc.conn.Write([]byte(line + "\r\n"))
	if err != nil {
		return fmt.Errorf("failed to write line: %w", err)
	}

	atomic.AddInt64(&tc.bytesWritten, int64(n))
	atomic.AddInt64(&tc.linesSent, 1)
	tc.updateActivity()
	return nil
}

// updateActivity updates the last activity timestamp
func (tc *tcpConnection) updateActivity() {
	atomic.StoreInt64(&tc.lastActivity, time.Now().Unix())
}

// ConnectionStatistics holds statistics for a connection
type ConnectionStatistics struct {
	ConnectionID string          `json:"connection_id"`
	State        ConnectionState `json:"state"`
	BytesRead    int64           `json:"bytes_read"`
	BytesWritten int64           `json:"bytes_written"`
	LinesRead    int64           `json:"lines_read"`
	LinesSent    int64           `json:"lines_sent"`
	LastActivity time.Time       `json:"last_activity"`
	RemoteAddr   string          `json:"remote_addr"`
}

// String returns the string representation of connection statistics
func (cs ConnectionStatistics) String() string {
	return fmt.Sprintf("Connection[%s] State=%s BytesR/W=%d/%d LinesR/S=%d/%d LastActivity=%s Remote=%s",
		cs.ConnectionID, cs.State, cs.BytesRead, cs.BytesWritten,
		cs.LinesRead, cs.LinesSent, cs.LastActivity.Format(time.RFC3339),
		cs.RemoteAddr)
}
