// Package network serves line-oriented telnet sessions over TCP.
package network

import (
	"errors"
	"net"
	"time"
)

var (
	// ErrServerRunning is returned by Start on a running server
	ErrServerRunning = errors.New("server is already running")

	// ErrConnectionClosed is returned by Send after Close
	ErrConnectionClosed = errors.New("connection is closed")
)

// ConnectionState represents the state of a network connection
type ConnectionState int

const (
	ConnectionStateConnected ConnectionState = iota
	ConnectionStateClosed
)

// String returns the string representation of ConnectionState
func (cs ConnectionState) String() string {
	switch cs {
	case ConnectionStateConnected:
		return "connected"
	case ConnectionStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection is one client session.
type Connection interface {
	// ID returns the unique identifier for this connection
	ID() string

	// RemoteAddr returns the remote network address
	RemoteAddr() net.Addr

	// Send queues one line for writing. The line terminator is added.
	Send(line string) error

	// Close writes any queued lines and closes the socket
	Close() error

	// State returns the current connection state
	State() ConnectionState

	// LastActivity returns when a line was last read or written
	LastActivity() time.Time

	// UserData returns the value attached by the handler
	UserData() any

	// SetUserData attaches a value to this connection
	SetUserData(data any)

	// Statistics returns connection statistics
	Statistics() ConnectionStatistics
}

// Handler receives session events. Calls for one connection are made from a
// single goroutine, in order.
type Handler interface {
	// OnConnect is called once the connection is registered
	OnConnect(conn Connection)

	// OnLine is called for every line read, without its terminator
	OnLine(conn Connection, line string)

	// OnDisconnect is called when reading stops; err is nil on a clean close
	OnDisconnect(conn Connection, err error)
}

// Config is the listener configuration.
type Config struct {
	// Address is the listening interface
	Address string

	// Port is the listening port; 0 picks a free one
	Port int

	// ReadTimeout closes a session that sends nothing for this long; 0 disables
	ReadTimeout time.Duration

	// WriteTimeout bounds a single line write
	WriteTimeout time.Duration

	// KeepAlive enables TCP keep-alive
	KeepAlive bool

	// KeepAliveInterval is the keep-alive interval
	KeepAliveInterval time.Duration

	// MaxConnections is the maximum number of concurrent connections
	MaxConnections int

	// MaxLineLength is the longest line accepted before the session is dropped
	MaxLineLength int

	// SendQueue is the number of lines buffered per connection
	SendQueue int

	// LineRate is the sustained number of lines per second a session may send
	LineRate float64

	// LineBurst is how many lines may arrive at once
	LineBurst int

	// LimitMessage is sent in place of running an over-limit line
	LimitMessage string
}

// DefaultConfig returns a default network configuration
func DefaultConfig() *Config {
	return &Config{
		Address:           "0.0.0.0",
		Port:              4000,
		WriteTimeout:      10 * time.Second,
		KeepAlive:         true,
		KeepAliveInterval: 60 * time.Second,
		MaxConnections:    1000,
		MaxLineLength:     4096,
		SendQueue:         256,
		LineRate:          5,
		LineBurst:         10,
		LimitMessage:      "You are doing that too fast.",
	}
}
