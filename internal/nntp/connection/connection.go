// Package connection implements a cancelable, timeout-bounded NNTP socket
// (spec.md §4.1): line-buffered reads, block reads, and a CRLF-terminated
// line writer, with optional TLS negotiation.
package connection

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Kind classifies a connection failure the way spec.md §4.1 names them.
type Kind int

const (
	KindNone Kind = iota
	KindDNSFailure
	KindConnectRefused
	KindTimeout
	KindTLSHandshake
	KindCancelled
	KindPeerClosed
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindDNSFailure:
		return "DnsFailure"
	case KindConnectRefused:
		return "ConnectRefused"
	case KindTimeout:
		return "Timeout"
	case KindTLSHandshake:
		return "TlsHandshake"
	case KindCancelled:
		return "Cancelled"
	case KindPeerClosed:
		return "PeerClosed"
	case KindIO:
		return "Io"
	default:
		return "None"
	}
}

// Error wraps a Kind with the underlying cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// state is the connection's lifecycle state (§4.1).
type state int32

const (
	stateClosed state = iota
	stateConnecting
	stateHandshaking
	stateConnected
	stateCancelled
)

// Config describes how to dial and secure a single connection to a server.
type Config struct {
	Host              string
	Port              int
	TLS               bool
	CipherSuites      []uint16 // optional explicit cipher list
	InsecureSkipVerify bool
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	DialTimeout       time.Duration
}

// Connection is a single TCP (optionally TLS) stream to a news server.
type Connection struct {
	cfg  Config
	conn net.Conn
	r    *bufio.Reader

	state      atomic.Int32
	cancelOnce sync.Once

	Authenticated bool
	ServerID      int
}

// New creates an unconnected Connection bound to the given server config.
func New(cfg Config) *Connection {
	c := &Connection{cfg: cfg}
	c.state.Store(int32(stateClosed))
	return c
}

// Connect resolves and dials the server, performing a TLS handshake if
// configured. It is not safe to call concurrently with itself.
func (c *Connection) Connect(ctx context.Context) error {
	c.state.Store(int32(stateConnecting))

	dialTimeout := c.cfg.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 30 * time.Second
	}
	dialer := &net.Dialer{Timeout: dialTimeout}

	addr := net.JoinHostPort(c.cfg.Host, fmt.Sprintf("%d", c.cfg.Port))
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.state.Store(int32(stateClosed))
		return classifyDialErr(err)
	}

	if c.cfg.TLS {
		c.state.Store(int32(stateHandshaking))
		tlsConn := tls.Client(conn, &tls.Config{
			ServerName:         c.cfg.Host,
			CipherSuites:       c.cfg.CipherSuites,
			InsecureSkipVerify: c.cfg.InsecureSkipVerify,
			MinVersion:         tls.VersionTLS12,
		})
		hsCtx := ctx
		var cancel context.CancelFunc
		if dialTimeout > 0 {
			hsCtx, cancel = context.WithTimeout(ctx, dialTimeout)
			defer cancel()
		}
		if err := tlsConn.HandshakeContext(hsCtx); err != nil {
			conn.Close()
			c.state.Store(int32(stateClosed))
			return &Error{Kind: KindTLSHandshake, Err: err}
		}
		conn = tlsConn
	}

	c.conn = conn
	c.r = bufio.NewReaderSize(conn, 64*1024)
	c.state.Store(int32(stateConnected))
	return nil
}

func classifyDialErr(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{Kind: KindDNSFailure, Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if sysErr, ok := opErr.Err.(interface{ Error() string }); ok && isRefused(sysErr) {
			return &Error{Kind: KindConnectRefused, Err: err}
		}
	}
	return &Error{Kind: KindIO, Err: err}
}

func isRefused(err error) bool {
	return err != nil && (contains(err.Error(), "refused") || contains(err.Error(), "connection reset"))
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

// WriteLine writes text followed by CRLF, honoring WriteTimeout.
func (c *Connection) WriteLine(text string) error {
	if state(c.state.Load()) == stateCancelled {
		return &Error{Kind: KindCancelled}
	}
	if c.conn == nil {
		return &Error{Kind: KindIO, Err: errors.New("not connected")}
	}
	if c.cfg.WriteTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	_, err := c.conn.Write([]byte(text + "\r\n"))
	if err != nil {
		return c.classifyIOErr(err)
	}
	return nil
}

// ReadLine reads one CRLF-terminated line (without the terminator), honoring
// ReadTimeout. Dot-stuffed lines ("..foo" -> ".foo") are NOT un-stuffed here
// — that is the Decoder's job, since dot-stuffing only applies within a
// multi-line response body, not to command responses.
func (c *Connection) ReadLine() (string, error) {
	if state(c.state.Load()) == stateCancelled {
		return "", &Error{Kind: KindCancelled}
	}
	if c.conn == nil {
		return "", &Error{Kind: KindIO, Err: errors.New("not connected")}
	}
	if c.cfg.ReadTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", c.classifyIOErr(err)
	}
	line = trimCRLF(line)
	return line, nil
}

// ReadBuffer returns whatever is already buffered without blocking for more.
func (c *Connection) ReadBuffer() []byte {
	if c.r == nil {
		return nil
	}
	n := c.r.Buffered()
	if n == 0 {
		return nil
	}
	buf, _ := c.r.Peek(n)
	out := make([]byte, len(buf))
	copy(out, buf)
	return out
}

// TryRecv reads up to len(buf) bytes into buf, honoring ReadTimeout, and
// returns the number of bytes read.
func (c *Connection) TryRecv(buf []byte) (int, error) {
	if state(c.state.Load()) == stateCancelled {
		return 0, &Error{Kind: KindCancelled}
	}
	if c.cfg.ReadTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}
	n, err := c.r.Read(buf)
	if err != nil {
		return n, c.classifyIOErr(err)
	}
	return n, nil
}

func (c *Connection) classifyIOErr(err error) error {
	if state(c.state.Load()) == stateCancelled {
		return &Error{Kind: KindCancelled, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	if errors.Is(err, net.ErrClosed) {
		return &Error{Kind: KindPeerClosed, Err: err}
	}
	return &Error{Kind: KindIO, Err: err}
}

func trimCRLF(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// Cancel is safe to call from another goroutine. It forces any in-flight or
// subsequent read/write to fail with KindCancelled and moves the connection
// to its terminal state. The connection must still be Disconnect()ed before
// reuse.
func (c *Connection) Cancel() {
	c.cancelOnce.Do(func() {
		c.state.Store(int32(stateCancelled))
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// Disconnect closes the underlying socket and resets state to Closed.
func (c *Connection) Disconnect() error {
	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	c.state.Store(int32(stateClosed))
	c.Authenticated = false
	return err
}

// Connected reports whether the connection is usable.
func (c *Connection) Connected() bool {
	return state(c.state.Load()) == stateConnected
}
