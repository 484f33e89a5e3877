// Package serverpool implements the ServerPool (spec.md §4.2): a registry of
// news servers grouped by tier with per-server connection semaphores,
// failure tracking, and per-(file,level) block timestamps.
package serverpool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nzbgrab/nzbgrab/internal/nntp/connection"
	"github.com/nzbgrab/nzbgrab/internal/nntp/nzbconfig"
)

// server tracks one configured NewsServer's live state.
type server struct {
	cfg nzbconfig.NewsServer

	mu        sync.Mutex
	idle      []*connection.Connection
	inUse     int
	failures  int
	backoffUntil time.Time
}

// Pool is the process-global registry of servers and their connections.
type Pool struct {
	mu      sync.Mutex
	servers []*server

	blockMu sync.Mutex
	blocked map[blockKey]time.Time

	rrMu     sync.Mutex
	rrCursor map[int]int // level -> round robin cursor
}

type blockKey struct {
	fileID string
	level  int
}

// New builds a Pool from the validated server list.
func New(cfg *nzbconfig.Core) *Pool {
	p := &Pool{
		blocked:  make(map[blockKey]time.Time),
		rrCursor: make(map[int]int),
	}
	for _, s := range cfg.Servers {
		p.servers = append(p.servers, &server{cfg: s})
	}
	sort.Slice(p.servers, func(i, j int) bool { return p.servers[i].cfg.ID < p.servers[j].cfg.ID })
	return p
}

// BlockServer records that (fileID, level) should not be attempted again
// until duration elapses (enforced inside GetConnection).
func (p *Pool) BlockServer(fileID string, level int, duration time.Duration) {
	p.blockMu.Lock()
	defer p.blockMu.Unlock()
	p.blocked[blockKey{fileID, level}] = time.Now().Add(duration)
}

func (p *Pool) isBlocked(fileID string, level int) bool {
	p.blockMu.Lock()
	defer p.blockMu.Unlock()
	until, ok := p.blocked[blockKey{fileID, level}]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(p.blocked, blockKey{fileID, level})
		return false
	}
	return true
}

// ErrNoServer is returned when no candidate server exists at the requested
// level (the caller should raise the level and retry, per spec.md §4.2).
var ErrNoServer = fmt.Errorf("no candidate server at requested level")

// GetConnection returns a connection bound to a server at the given level,
// preferring idle sockets, round-robining by server id under ties, and
// skipping servers blocked for this file/level or whose retention excludes
// the article (articleAge may be zero if unknown).
func (p *Pool) GetConnection(ctx context.Context, level int, fileID string, articleAge time.Duration) (*connection.Connection, error) {
	p.mu.Lock()
	var candidates []*server
	for _, s := range p.servers {
		if s.cfg.Level != level || !s.cfg.Active {
			continue
		}
		if p.isBlocked(fileID, level) {
			continue
		}
		if s.cfg.RetentionDays > 0 && articleAge > time.Duration(s.cfg.RetentionDays)*24*time.Hour {
			continue
		}
		s.mu.Lock()
		backingOff := time.Now().Before(s.backoffUntil)
		s.mu.Unlock()
		if backingOff {
			continue
		}
		candidates = append(candidates, s)
	}
	p.mu.Unlock()

	if len(candidates) == 0 {
		return nil, ErrNoServer
	}

	// Prefer a server with an idle connection already open.
	for _, s := range candidates {
		s.mu.Lock()
		if len(s.idle) > 0 {
			conn := s.idle[len(s.idle)-1]
			s.idle = s.idle[:len(s.idle)-1]
			s.inUse++
			s.mu.Unlock()
			return conn, nil
		}
		s.mu.Unlock()
	}

	// Round-robin among candidates with free connection slots.
	p.rrMu.Lock()
	start := p.rrCursor[level]
	p.rrCursor[level] = (start + 1) % len(candidates)
	p.rrMu.Unlock()

	for i := 0; i < len(candidates); i++ {
		s := candidates[(start+i)%len(candidates)]
		s.mu.Lock()
		if s.inUse < s.cfg.MaxConnections {
			s.inUse++
			s.mu.Unlock()
			return p.dial(ctx, s)
		}
		s.mu.Unlock()
	}

	return nil, fmt.Errorf("%w: all servers at level %d are saturated", ErrNoServer, level)
}

func (p *Pool) dial(ctx context.Context, s *server) (*connection.Connection, error) {
	var conn *connection.Connection
	op := func() error {
		conn = connection.New(connection.Config{
			Host: s.cfg.Host,
			Port: s.cfg.Port,
			TLS:  s.cfg.TLS,
		})
		return conn.Connect(ctx)
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		s.mu.Lock()
		s.failures++
		s.inUse--
		s.backoffUntil = time.Now().Add(shortBackoff(s.failures))
		s.mu.Unlock()
		return nil, fmt.Errorf("dial server %d (%s:%d): %w", s.cfg.ID, s.cfg.Host, s.cfg.Port, err)
	}
	conn.ServerID = s.cfg.ID
	return conn, nil
}

func shortBackoff(failures int) time.Duration {
	d := time.Duration(failures) * 2 * time.Second
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

// FreeConnection returns a connection to its server's idle pool, or closes
// it if keepAlive is false.
func (p *Pool) FreeConnection(conn *connection.Connection, keepAlive bool) {
	if conn == nil {
		return
	}
	p.mu.Lock()
	var owner *server
	for _, s := range p.servers {
		if s.cfg.ID == conn.ServerID {
			owner = s
			break
		}
	}
	p.mu.Unlock()
	if owner == nil {
		conn.Disconnect()
		return
	}

	owner.mu.Lock()
	owner.inUse--
	if keepAlive && conn.Connected() {
		owner.idle = append(owner.idle, conn)
		owner.mu.Unlock()
		return
	}
	owner.mu.Unlock()
	conn.Disconnect()
}

// CloseUnusedConnections closes every currently idle connection across all
// servers. Intended to be called periodically by the coordinator.
func (p *Pool) CloseUnusedConnections() {
	p.mu.Lock()
	servers := append([]*server(nil), p.servers...)
	p.mu.Unlock()

	for _, s := range servers {
		s.mu.Lock()
		idle := s.idle
		s.idle = nil
		s.mu.Unlock()
		for _, c := range idle {
			c.Disconnect()
		}
	}
}
