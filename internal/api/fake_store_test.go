package api

import (
	"context"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/fleetgrid-io/fleetgrid-ce/internal/guard"
)

// memStore is a minimal in-memory guard.CounterStore for handler tests.
type memStore struct {
	mu   sync.Mutex
	vals map[string]string
	exp  map[string]time.Time
}

func newMemStore() *memStore {
	return &memStore{vals: map[string]string{}, exp: map[string]time.Time{}}
}

func (s *memStore) alive(key string) bool {
	exp, ok := s.exp[key]
	if ok && time.Now().After(exp) {
		delete(s.vals, key)
		delete(s.exp, key)
		return false
	}
	_, ok = s.vals[key]
	return ok
}

func (s *memStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive(key) {
		return "", false, nil
	}
	return s.vals[key], true, nil
}

func (s *memStore) SetEX(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vals[key] = value
	s.exp[key] = time.Now().Add(ttl)
	return nil
}

func (s *memStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(0)
	if s.alive(key) {
		n, _ = strconv.ParseInt(s.vals[key], 10, 64)
	} else {
		delete(s.exp, key)
	}
	n++
	s.vals[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (s *memStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alive(key) {
		s.exp[key] = time.Now().Add(ttl)
	}
	return nil
}

func (s *memStore) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive(key) {
		return -2 * time.Second, nil
	}
	exp, ok := s.exp[key]
	if !ok {
		return -1 * time.Second, nil
	}
	return time.Until(exp), nil
}

func (s *memStore) Del(_ context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, k := range keys {
		if s.alive(k) {
			n++
		}
		delete(s.vals, k)
		delete(s.exp, k)
	}
	return n, nil
}

func (s *memStore) Scan(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.vals {
		if ok, _ := path.Match(pattern, k); ok && s.alive(k) {
			out = append(out, k)
		}
	}
	return out, nil
}

// memLedger is an append-only in-memory guard.AttemptLedger.
type memLedger struct {
	mu   sync.Mutex
	rows []guard.Attempt
}

func (l *memLedger) InsertAttempt(_ context.Context, a guard.Attempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows = append(l.rows, a)
	return nil
}

func (l *memLedger) CountSince(_ context.Context, email string, since time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, r := range l.rows {
		if r.Email == email && r.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (l *memLedger) LatestAttempt(_ context.Context, email string) (*guard.Attempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.rows) - 1; i >= 0; i-- {
		if l.rows[i].Email == email {
			row := l.rows[i]
			return &row, nil
		}
	}
	return nil, nil
}

func (l *memLedger) DistinctIPsForEmail(_ context.Context, email string, since time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	seen := map[string]bool{}
	for _, r := range l.rows {
		if r.Email == email && r.CreatedAt.After(since) {
			seen[r.IP] = true
		}
	}
	return len(seen), nil
}

func (l *memLedger) DistinctEmailsForIP(_ context.Context, ip string, since time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	seen := map[string]bool{}
	for _, r := range l.rows {
		if r.IP == ip && r.CreatedAt.After(since) {
			seen[r.Email] = true
		}
	}
	return len(seen), nil
}

func (l *memLedger) MarkUnlocked(_ context.Context, email string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.rows {
		if l.rows[i].Email == email {
			l.rows[i].Locked = false
		}
	}
	return nil
}
