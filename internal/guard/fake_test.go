package guard

import (
	"context"
	"errors"
	"path"
	"strconv"
	"sync"
	"time"
)

var errStoreDown = errors.New("store unavailable")

// fakeStore is an in-memory CounterStore with a controllable clock, so
// tests can expire windows without sleeping, and a kill switch to simulate
// an unreachable store.
type fakeStore struct {
	mu   sync.Mutex
	now  time.Time
	vals map[string]string
	exp  map[string]time.Time
	down bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		now:  time.Now(),
		vals: make(map[string]string),
		exp:  make(map[string]time.Time),
	}
}

func (s *fakeStore) advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(d)
}

func (s *fakeStore) expire(key string) {
	if at, ok := s.exp[key]; ok && !s.now.Before(at) {
		delete(s.vals, key)
		delete(s.exp, key)
	}
}

func (s *fakeStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return "", false, errStoreDown
	}
	s.expire(key)
	v, ok := s.vals[key]
	return v, ok, nil
}

func (s *fakeStore) SetEX(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errStoreDown
	}
	s.vals[key] = value
	s.exp[key] = s.now.Add(ttl)
	return nil
}

func (s *fakeStore) Incr(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return 0, errStoreDown
	}
	s.expire(key)
	n, _ := strconv.ParseInt(s.vals[key], 10, 64)
	n++
	s.vals[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (s *fakeStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errStoreDown
	}
	if _, ok := s.vals[key]; ok {
		s.exp[key] = s.now.Add(ttl)
	}
	return nil
}

func (s *fakeStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return 0, errStoreDown
	}
	s.expire(key)
	if _, ok := s.vals[key]; !ok {
		return -2 * time.Second, nil
	}
	at, ok := s.exp[key]
	if !ok {
		return -time.Second, nil
	}
	return at.Sub(s.now), nil
}

func (s *fakeStore) Del(ctx context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return 0, errStoreDown
	}
	var removed int64
	for _, k := range keys {
		s.expire(k)
		if _, ok := s.vals[k]; ok {
			delete(s.vals, k)
			delete(s.exp, k)
			removed++
		}
	}
	return removed, nil
}

func (s *fakeStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, errStoreDown
	}
	var keys []string
	for k := range s.vals {
		s.expire(k)
		if _, ok := s.vals[k]; !ok {
			continue
		}
		if matched, _ := path.Match(pattern, k); matched {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// fakeLedger is an in-memory AttemptLedger.
type fakeLedger struct {
	mu   sync.Mutex
	rows []Attempt
	down bool
}

func (l *fakeLedger) InsertAttempt(ctx context.Context, a Attempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.down {
		return errStoreDown
	}
	l.rows = append(l.rows, a)
	return nil
}

func (l *fakeLedger) CountSince(ctx context.Context, email string, since time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.down {
		return 0, errStoreDown
	}
	n := 0
	for _, r := range l.rows {
		if r.Email == email && r.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (l *fakeLedger) LatestAttempt(ctx context.Context, email string) (*Attempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.down {
		return nil, errStoreDown
	}
	for i := len(l.rows) - 1; i >= 0; i-- {
		if l.rows[i].Email == email {
			a := l.rows[i]
			return &a, nil
		}
	}
	return nil, nil
}

func (l *fakeLedger) DistinctIPsForEmail(ctx context.Context, email string, since time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.down {
		return 0, errStoreDown
	}
	seen := make(map[string]bool)
	for _, r := range l.rows {
		if r.Email == email && r.CreatedAt.After(since) {
			seen[r.IP] = true
		}
	}
	return len(seen), nil
}

func (l *fakeLedger) DistinctEmailsForIP(ctx context.Context, ip string, since time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.down {
		return 0, errStoreDown
	}
	seen := make(map[string]bool)
	for _, r := range l.rows {
		if r.IP == ip && r.CreatedAt.After(since) {
			seen[r.Email] = true
		}
	}
	return len(seen), nil
}

func (l *fakeLedger) MarkUnlocked(ctx context.Context, email string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.down {
		return errStoreDown
	}
	for i := range l.rows {
		if l.rows[i].Email == email {
			l.rows[i].Locked = false
		}
	}
	return nil
}
