package limiter

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	fails        int
	updatedAt    time.Time
	blockedUntil time.Time
}

// Memory is an in-process limiter with the same policy as PG.
type Memory struct {
	mu  sync.Mutex
	pol Policy
	m   map[string]*entry
	now func() time.Time
}

// NewMemory constructs an in-process limiter.
func NewMemory(pol Policy) *Memory {
	return &Memory{pol: pol, m: map[string]*entry{}, now: time.Now}
}

func slot(key string, clientHash []byte) string { return key + "\x00" + string(clientHash) }

// Allow reports whether an attempt is currently allowed.
func (l *Memory) Allow(_ context.Context, key string, clientHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.m[slot(key, clientHash)]
	if !ok {
		return true, 0, nil
	}
	if now := l.now(); e.blockedUntil.After(now) {
		return false, e.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success clears the counters.
func (l *Memory) Success(_ context.Context, key string, clientHash []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.m, slot(key, clientHash))
	return nil
}

// Failure records a failed attempt.
func (l *Memory) Failure(_ context.Context, key string, clientHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	k := slot(key, clientHash)
	e, ok := l.m[k]
	if !ok {
		e = &entry{}
		l.m[k] = e
	}
	if now.Sub(e.updatedAt) > l.pol.Window {
		e.fails = 0
	}
	e.fails++
	e.updatedAt = now
	if e.fails < l.pol.MaxFails {
		return false, 0, nil
	}
	e.blockedUntil = now.Add(l.pol.BlockFor)
	return true, l.pol.BlockFor, nil
}
