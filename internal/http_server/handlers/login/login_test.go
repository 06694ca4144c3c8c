package login

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aquasense/internal/auth"
	"aquasense/internal/http_server/middleware/guards"
	"aquasense/internal/lib/validation"
	"aquasense/internal/models"
	"aquasense/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLogin struct {
	token string
	acc   models.Account
	err   error
}

func (f fakeLogin) Login(context.Context, string, string) (string, models.Account, error) {
	return f.token, f.acc, f.err
}

func (f fakeLogin) SessionTTL() time.Duration { return 24 * time.Hour }

func post(t *testing.T, svc LoggerIn, payload string) *httptest.ResponseRecorder {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(payload))

	New(log, validation.New(), svc)(rec, req)

	return rec
}

const validPayload = `{"email": "ada@example.com", "password": "Str0ng!pass"}`

func TestLogin_ReturnsStrippedAccountAndCookie(t *testing.T) {
	t.Parallel()

	svc := fakeLogin{
		token: "session-token",
		acc: models.Account{
			ID:        "a1b2c3d4",
			Name:      "Ada",
			Email:     "ada@example.com",
			PassHash:  []byte("$2a$10$secret-digest"),
			Activated: true,
		},
	}

	rec := post(t, svc, validPayload)

	require.Equal(t, http.StatusOK, rec.Code)

	var body Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "a1b2c3d4", body.User.ID)
	assert.NotContains(t, rec.Body.String(), "secret-digest")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, guards.SessionCookie, cookies[0].Name)
	assert.Equal(t, "session-token", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestLogin_UnknownEmail(t *testing.T) {
	t.Parallel()

	rec := post(t, fakeLogin{err: storage.ErrAccountNotFound}, validPayload)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin_WrongPassword(t *testing.T) {
	t.Parallel()

	rec := post(t, fakeLogin{err: auth.ErrInvalidCredentials}, validPayload)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestLogin_MissingFields(t *testing.T) {
	t.Parallel()

	rec := post(t, fakeLogin{}, `{"email": "ada@example.com"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
