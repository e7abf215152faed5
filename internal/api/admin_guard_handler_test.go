package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetgrid-io/fleetgrid-ce/internal/guard"
	"github.com/fleetgrid-io/fleetgrid-ce/internal/repository"
)

func newTestGate() *guard.Gate {
	s := guard.DefaultSettings()
	s.Delay.Enabled = false
	return guard.New(newMemStore(), &memLedger{}, guard.NewConfig(s))
}

func adminRouter(h *AdminGuardHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/guard/unlock/:email", h.UnlockAccount)
	r.GET("/guard/lockout/:email", h.LockoutStatus)
	r.POST("/guard/reset-limits", h.ResetLimits)
	r.POST("/guard/lift-ban/:ip", h.LiftBan)
	r.GET("/guard/config", h.GetConfig)
	r.PUT("/guard/config", h.UpdateConfig)
	return r
}

func lockAccount(t *testing.T, gate *guard.Gate, email string) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, reporter, err := gate.CheckLogin(ctx, guard.LoginCheck{
			Email: email, IP: "10.1.1.1", CaptchaToken: "ok",
		})
		require.NoError(t, err)
		require.NotNil(t, reporter)
		_, err = reporter.Failure(ctx, "invalid_password")
		require.NoError(t, err)
	}
	st, _ := gate.LockStatus(ctx, email)
	require.True(t, st.Locked)
}

func TestAdminGuard_UnlockAccount(t *testing.T) {
	gate := newTestGate()
	r := adminRouter(NewAdminGuardHandler(gate, nil))

	lockAccount(t, gate, "ops@example.com")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/guard/unlock/ops@example.com", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	st, _ := gate.LockStatus(context.Background(), "ops@example.com")
	assert.False(t, st.Locked)
}

func TestAdminGuard_ResetLimits(t *testing.T) {
	gate := newTestGate()
	r := adminRouter(NewAdminGuardHandler(gate, nil))

	// Consume some quota so there is a counter to remove.
	for i := 0; i < 3; i++ {
		gate.CheckRequest(context.Background(), guard.Request{UserID: "42", Role: "Viewer"})
	}

	body, _ := json.Marshal(resetLimitsRequest{Subject: "42"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/guard/reset-limits", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Removed int `json:"removed"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Removed)

	// The window restarted from scratch.
	d := gate.CheckRequest(context.Background(), guard.Request{UserID: "42", Role: "Viewer"})
	assert.Equal(t, d.Limit-1, d.Remaining)
}

func TestAdminGuard_UpdateConfig(t *testing.T) {
	gate := newTestGate()
	r := adminRouter(NewAdminGuardHandler(gate, nil))

	s := gate.Config().Snapshot()
	s.Lockout.Threshold = 8
	body, _ := json.Marshal(s)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/guard/config", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 8, gate.Config().Snapshot().Lockout.Threshold)
}

func TestAdminGuard_UpdateConfig_RejectsInvalid(t *testing.T) {
	gate := newTestGate()
	r := adminRouter(NewAdminGuardHandler(gate, nil))

	s := gate.Config().Snapshot()
	s.Lockout.Threshold = 0
	body, _ := json.Marshal(s)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/guard/config", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 5, gate.Config().Snapshot().Lockout.Threshold)
}

func TestAdminGuard_LockoutStatus(t *testing.T) {
	gate := newTestGate()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	attempts := repository.NewAttemptRepository(sqlx.NewDb(db, "postgres"))

	now := time.Now()
	cols := []string{"id", "email", "ip_address", "user_agent", "reason", "consecutive_fails", "locked", "created_at"}
	mock.ExpectQuery(`SELECT id, email, ip_address`).
		WithArgs("ops@example.com", 20).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(1, "ops@example.com", "10.1.1.1", "curl/8", "invalid_password", 2, false, now))

	r := adminRouter(NewAdminGuardHandler(gate, attempts))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/guard/lockout/ops@example.com", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Locked         bool              `json:"locked"`
		RecentAttempts []json.RawMessage `json:"recent_attempts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Locked)
	assert.Len(t, resp.RecentAttempts, 1)
}

func TestAdminGuard_LiftBan(t *testing.T) {
	gate := newTestGate()
	r := adminRouter(NewAdminGuardHandler(gate, nil))

	ctx := context.Background()
	// Drive enough attempts through one address to ban it.
	for i := 0; i < 10; i++ {
		_, reporter, err := gate.CheckLogin(ctx, guard.LoginCheck{
			Email: "a@example.com", IP: "203.0.113.9", CaptchaToken: "ok",
		})
		require.NoError(t, err)
		if reporter == nil {
			break
		}
		reporter.Failure(ctx, "invalid_password")
		gate.UnlockAccount(ctx, "a@example.com")
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/guard/lift-ban/203.0.113.9", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	_, reporter, err := gate.CheckLogin(ctx, guard.LoginCheck{
		Email: "a@example.com", IP: "203.0.113.9", CaptchaToken: "ok",
	})
	require.NoError(t, err)
	assert.NotNil(t, reporter)
}
