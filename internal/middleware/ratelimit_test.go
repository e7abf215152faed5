package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetgrid-io/fleetgrid-ce/internal/guard"
)

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

func newTestRouter(t *testing.T, endpoint string, identity gin.HandlerFunc) (*gin.Engine, *guard.Gate) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := guard.DefaultSettings()
	s.Roles["Viewer"] = guard.LimitRule{Points: 3, Window: time.Minute, BlockFor: 5 * time.Minute}
	s.Guest = guard.LimitRule{Points: 2, Window: time.Minute, BlockFor: 5 * time.Minute}
	s.Endpoints["device-command"] = guard.LimitRule{Points: 1, Window: time.Minute, BlockFor: time.Minute}
	cfg := guard.NewConfig(s)

	gate := guard.New(newMemStore(), nil, cfg)

	r := gin.New()
	handlers := []gin.HandlerFunc{}
	if identity != nil {
		handlers = append(handlers, identity)
	}
	handlers = append(handlers, RateLimit(gate, endpoint), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/probe", handlers...)
	return r, gate
}

func doProbe(r *gin.Engine, ip string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.RemoteAddr = ip + ":4411"
	r.ServeHTTP(w, req)
	return w
}

func asViewer(c *gin.Context) {
	c.Set("user_id", uint(42))
	c.Set("user_role", "Viewer")
	c.Next()
}

func TestRateLimit_HeadersOnEveryResponse(t *testing.T) {
	r, _ := newTestRouter(t, "", asViewer)

	w := doProbe(r, "198.51.100.9")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
}

func TestRateLimit_DeniesOverQuota(t *testing.T) {
	r, _ := newTestRouter(t, "", asViewer)

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, doProbe(r, "198.51.100.9").Code)
	}
	w := doProbe(r, "198.51.100.9")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate limit exceeded")
}

func TestRateLimit_GuestFallsBackToIP(t *testing.T) {
	r, _ := newTestRouter(t, "", nil)

	require.Equal(t, http.StatusOK, doProbe(r, "203.0.113.5").Code)
	require.Equal(t, http.StatusOK, doProbe(r, "203.0.113.5").Code)
	require.Equal(t, http.StatusTooManyRequests, doProbe(r, "203.0.113.5").Code)

	// A different address carries its own window.
	require.Equal(t, http.StatusOK, doProbe(r, "203.0.113.6").Code)
}

func TestRateLimit_EndpointRuleOverridesRole(t *testing.T) {
	r, _ := newTestRouter(t, "device-command", asViewer)

	w := doProbe(r, "198.51.100.9")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))

	require.Equal(t, http.StatusTooManyRequests, doProbe(r, "198.51.100.9").Code)
}
