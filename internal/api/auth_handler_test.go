package api

import (
	"bytes"
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
	"golang.org/x/crypto/bcrypt"

	"github.com/fleetgrid-io/fleetgrid-ce/internal/auth"
	"github.com/fleetgrid-io/fleetgrid-ce/internal/guard"
	"github.com/fleetgrid-io/fleetgrid-ce/internal/models"
	"github.com/fleetgrid-io/fleetgrid-ce/internal/repository"
)

var userCols = []string{"id", "email", "password_hash", "first_name", "last_name", "role", "is_active", "created_at", "updated_at"}

func newLoginFixture(t *testing.T) (*gin.Engine, *guard.Gate, sqlmock.Sqlmock, *memLedger) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	users := repository.NewUserRepository(sqlx.NewDb(db, "postgres"))

	s := guard.DefaultSettings()
	s.Delay.Enabled = false
	ledger := &memLedger{}
	gate := guard.New(newMemStore(), ledger, guard.NewConfig(s))

	jwt := auth.NewJWTManager("test-secret", "fleetgrid-test", time.Hour)
	service := auth.NewAuthService(users, gate, jwt)
	handler := NewAuthHandler(service, "", false)

	r := gin.New()
	r.POST("/auth/login", handler.Login)
	return r, gate, mock, ledger
}

func expectUserRow(mock sqlmock.Sqlmock, email, passwordHash string) {
	expectUserRowActive(mock, email, passwordHash, true)
}

func expectUserRowActive(mock sqlmock.Sqlmock, email, passwordHash string, active bool) {
	now := time.Now()
	mock.ExpectQuery(`SELECT id, email, password_hash`).
		WithArgs(email).
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(1, email, passwordHash, "Ada", "Chen", "Operator", active, now, now))
}

func postLogin(r *gin.Engine, body models.LoginRequest) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "198.51.100.20:55001"
	r.ServeHTTP(w, req)
	return w
}

func TestLogin_Success(t *testing.T) {
	r, _, mock, _ := newLoginFixture(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	expectUserRow(mock, "ada@example.com", string(hash))

	w := postLogin(r, models.LoginRequest{Email: "ada@example.com", Password: "correct horse"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	require.NotNil(t, resp.User)
	assert.Equal(t, "Operator", resp.User.Role)
}

func TestLogin_InvalidBody(t *testing.T) {
	r, _, _, _ := newLoginFixture(t)

	w := postLogin(r, models.LoginRequest{Email: "not-an-email", Password: ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogin_UnknownEmailRecordsFailure(t *testing.T) {
	r, _, mock, ledger := newLoginFixture(t)

	mock.ExpectQuery(`SELECT id, email, password_hash`).
		WithArgs("ghost@example.com").
		WillReturnRows(sqlmock.NewRows(userCols))

	w := postLogin(r, models.LoginRequest{Email: "ghost@example.com", Password: "whatever"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid email or password")

	require.Len(t, ledger.rows, 1)
	assert.Equal(t, "unknown_email", ledger.rows[0].Reason)
}

func TestLogin_WrongPassword(t *testing.T) {
	r, _, mock, ledger := newLoginFixture(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	expectUserRow(mock, "ada@example.com", string(hash))

	w := postLogin(r, models.LoginRequest{Email: "ada@example.com", Password: "wrong"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Len(t, ledger.rows, 1)
	assert.Equal(t, "invalid_password", ledger.rows[0].Reason)
}

func TestLogin_InactiveAccountRecordsDistinctReason(t *testing.T) {
	r, _, mock, ledger := newLoginFixture(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	expectUserRowActive(mock, "ada@example.com", string(hash), false)

	// Right password, disabled account: same 401 as a bad password, but
	// the ledger tells the two apart.
	w := postLogin(r, models.LoginRequest{Email: "ada@example.com", Password: "correct horse"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid email or password")

	require.Len(t, ledger.rows, 1)
	assert.Equal(t, "inactive_account", ledger.rows[0].Reason)
}

func TestLogin_CaptchaDemandedAfterThreshold(t *testing.T) {
	r, _, mock, _ := newLoginFixture(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		expectUserRow(mock, "ada@example.com", string(hash))
		w := postLogin(r, models.LoginRequest{Email: "ada@example.com", Password: "wrong"})
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}

	// Fourth attempt without a CAPTCHA token never reaches the database.
	w := postLogin(r, models.LoginRequest{Email: "ada@example.com", Password: "correct horse"})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "requires_captcha")

	// With a token, the attempt goes through.
	expectUserRow(mock, "ada@example.com", string(hash))
	w = postLogin(r, models.LoginRequest{
		Email: "ada@example.com", Password: "correct horse", CaptchaToken: "solved",
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogin_LockedAccountGets429(t *testing.T) {
	r, _, mock, _ := newLoginFixture(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		expectUserRow(mock, "ada@example.com", string(hash))
		w := postLogin(r, models.LoginRequest{
			Email: "ada@example.com", Password: "wrong", CaptchaToken: "solved",
		})
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}

	// Even the right password is refused while the lock holds.
	w := postLogin(r, models.LoginRequest{
		Email: "ada@example.com", Password: "correct horse", CaptchaToken: "solved",
	})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}
