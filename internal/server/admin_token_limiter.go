package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	adminTokenMaxFailures = 5
	adminTokenWindow      = time.Minute
	adminTokenBlockFor    = 5 * time.Minute
)

// tokenFailureLimiter blocks a client for a while after repeated invalid
// admin tokens. Idle entries are pruned every sweepEvery operations.
type tokenFailureLimiter struct {
	mu          sync.Mutex
	clients     map[string]tokenFailures
	maxFailures int
	window      time.Duration
	blockFor    time.Duration
	idleAfter   time.Duration
	ops         int
	sweepEvery  int
}

type tokenFailures struct {
	count        int
	windowStart  time.Time
	blockedUntil time.Time
	lastSeen     time.Time
}

func newTokenFailureLimiter(maxFailures int, window, blockFor time.Duration) *tokenFailureLimiter {
	if maxFailures <= 0 || window <= 0 || blockFor <= 0 {
		return nil
	}
	idleAfter := 2 * max(window, blockFor)
	if idleAfter < 10*time.Minute {
		idleAfter = 10 * time.Minute
	}
	return &tokenFailureLimiter{
		clients:     make(map[string]tokenFailures),
		maxFailures: maxFailures,
		window:      window,
		blockFor:    blockFor,
		idleAfter:   idleAfter,
		sweepEvery:  64,
	}
}

// Allow reports whether client may present an admin token now.
func (l *tokenFailureLimiter) Allow(client string, now time.Time) bool {
	if l == nil || client == "" {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	state := l.clients[client]
	state.lastSeen = now
	blocked := now.Before(state.blockedUntil)
	if !blocked {
		state.blockedUntil = time.Time{}
		if !state.windowStart.IsZero() && now.Sub(state.windowStart) > l.window {
			state.count = 0
			state.windowStart = time.Time{}
		}
	}
	l.clients[client] = state
	l.sweepLocked(now)
	return !blocked
}

// Fail records one invalid token from client.
func (l *tokenFailureLimiter) Fail(client string, now time.Time) {
	if l == nil || client == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	state := l.clients[client]
	if state.windowStart.IsZero() || now.Sub(state.windowStart) > l.window {
		state.count = 0
		state.windowStart = now
	}
	state.count++
	if state.count >= l.maxFailures {
		state.blockedUntil = now.Add(l.blockFor)
		state.count = 0
		state.windowStart = time.Time{}
	}
	state.lastSeen = now
	l.clients[client] = state
	l.sweepLocked(now)
}

// Reset forgets client after a valid token.
func (l *tokenFailureLimiter) Reset(client string) {
	if l == nil || client == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.clients, client)
}

func (l *tokenFailureLimiter) sweepLocked(now time.Time) {
	l.ops++
	if l.ops%l.sweepEvery != 0 {
		return
	}
	for client, state := range l.clients {
		if now.Sub(state.lastSeen) > l.idleAfter {
			delete(l.clients, client)
		}
	}
}

func requestClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(remote); err == nil {
		return strings.TrimSpace(host)
	}
	return remote
}
