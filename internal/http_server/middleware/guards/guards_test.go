package guards

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aquasense/internal/auth"
	resp "aquasense/internal/lib/api/response"
	"aquasense/internal/models"
	"aquasense/internal/storage"
	"aquasense/internal/tokens"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTokens(t *testing.T, sessionTTL time.Duration) *tokens.Service {
	t.Helper()
	svc, err := tokens.New("guard-test-secret", sessionTTL, 5*time.Minute)
	require.NoError(t, err)
	return svc
}

type fakeAccounts map[string]models.Account

func (f fakeAccounts) ByID(_ context.Context, id string) (models.Account, error) {
	acc, ok := f[id]
	if !ok {
		return models.Account{}, storage.ErrAccountNotFound
	}
	return acc, nil
}

type fakeDevices map[string]models.Device

func (f fakeDevices) ByID(_ context.Context, id string) (models.Device, error) {
	dev, ok := f[id]
	if !ok {
		return models.Device{}, storage.ErrDeviceNotFound
	}
	return dev, nil
}

type fakeAuthorizer struct {
	deviceID string
	err      error
}

func (f fakeAuthorizer) CheckDeviceKey(context.Context, string) (string, error) {
	return f.deviceID, f.err
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) resp.Response {
	t.Helper()
	var body resp.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

// okHandler records that the chain let the request through.
func okHandler(reached *bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		*reached = true
		w.WriteHeader(http.StatusOK)
	}
}

func TestSession_MissingCookie(t *testing.T) {
	t.Parallel()

	var reached bool
	h := Session(discardLogger(), newTokens(t, time.Hour))(okHandler(&reached))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "You are not logged in", decodeBody(t, rec).Message)
	assert.False(t, reached)
}

func TestSession_ExpiredToken(t *testing.T) {
	t.Parallel()

	toks := newTokens(t, -time.Minute)
	token, err := toks.IssueSession("a1b2c3d4")
	require.NoError(t, err)

	var reached bool
	h := Session(discardLogger(), toks)(okHandler(&reached))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Session expired, please log in again", decodeBody(t, rec).Message)
	assert.False(t, reached)
}

func TestSession_GarbageToken(t *testing.T) {
	t.Parallel()

	var reached bool
	h := Session(discardLogger(), newTokens(t, time.Hour))(okHandler(&reached))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "not.a.token"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Forbidden", decodeBody(t, rec).Message)
	assert.False(t, reached)
}

func TestSession_ValidTokenExposesClaims(t *testing.T) {
	t.Parallel()

	toks := newTokens(t, time.Hour)
	token, err := toks.IssueSession("a1b2c3d4")
	require.NoError(t, err)

	var gotUserID string
	h := Session(discardLogger(), toks)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := SessionFromContext(r.Context())
		require.True(t, ok)
		gotUserID = claims.UserID
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "a1b2c3d4", gotUserID)
}

func withSession(req *http.Request, userID string) *http.Request {
	claims := &tokens.SessionClaims{UserID: userID}
	return req.WithContext(context.WithValue(req.Context(), sessionKey, claims))
}

func routed(pattern string, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Handle(pattern, h)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestUserPermission_OwnerPasses(t *testing.T) {
	t.Parallel()

	accounts := fakeAccounts{"a1b2c3d4": {ID: "a1b2c3d4"}}

	var reached bool
	h := UserPermission(discardLogger(), accounts)(okHandler(&reached))

	req := withSession(httptest.NewRequest(http.MethodGet, "/api/users/a1b2c3d4", nil), "a1b2c3d4")
	rec := routed("/api/users/{userId}", h, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, reached)
}

func TestUserPermission_ForeignAccountForbidden(t *testing.T) {
	t.Parallel()

	accounts := fakeAccounts{"other111": {ID: "other111"}}

	var reached bool
	h := UserPermission(discardLogger(), accounts)(okHandler(&reached))

	req := withSession(httptest.NewRequest(http.MethodGet, "/api/users/other111", nil), "a1b2c3d4")
	rec := routed("/api/users/{userId}", h, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, reached)
}

func TestUserPermission_UnknownAccount(t *testing.T) {
	t.Parallel()

	var reached bool
	h := UserPermission(discardLogger(), fakeAccounts{})(okHandler(&reached))

	req := withSession(httptest.NewRequest(http.MethodGet, "/api/users/ghost", nil), "a1b2c3d4")
	rec := routed("/api/users/{userId}", h, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User does not exist", decodeBody(t, rec).Message)
	assert.False(t, reached)
}

func TestUserPermission_NoRouteIDPassesThrough(t *testing.T) {
	t.Parallel()

	var reached bool
	h := UserPermission(discardLogger(), fakeAccounts{})(okHandler(&reached))

	req := withSession(httptest.NewRequest(http.MethodGet, "/api/users", nil), "a1b2c3d4")
	rec := routed("/api/users", h, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, reached)
}

func TestDevicePermission_OwnerPasses(t *testing.T) {
	t.Parallel()

	devices := fakeDevices{"deadbeef": {ID: "deadbeef", UserID: "a1b2c3d4"}}

	var reached bool
	h := DevicePermission(discardLogger(), devices)(okHandler(&reached))

	req := withSession(httptest.NewRequest(http.MethodGet, "/api/devices/deadbeef", nil), "a1b2c3d4")
	rec := routed("/api/devices/{deviceId}", h, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, reached)
}

func TestDevicePermission_ForeignDeviceForbidden(t *testing.T) {
	t.Parallel()

	devices := fakeDevices{"deadbeef": {ID: "deadbeef", UserID: "other111"}}

	var reached bool
	h := DevicePermission(discardLogger(), devices)(okHandler(&reached))

	req := withSession(httptest.NewRequest(http.MethodGet, "/api/devices/deadbeef", nil), "a1b2c3d4")
	rec := routed("/api/devices/{deviceId}", h, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, reached)
}

func TestDevicePermission_UnknownDevice(t *testing.T) {
	t.Parallel()

	var reached bool
	h := DevicePermission(discardLogger(), fakeDevices{})(okHandler(&reached))

	req := withSession(httptest.NewRequest(http.MethodGet, "/api/devices/ghost", nil), "a1b2c3d4")
	rec := routed("/api/devices/{deviceId}", h, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Device does not exist", decodeBody(t, rec).Message)
	assert.False(t, reached)
}

func TestActivated_BlocksUnverifiedAccount(t *testing.T) {
	t.Parallel()

	accounts := fakeAccounts{"a1b2c3d4": {ID: "a1b2c3d4", Activated: false}}

	var reached bool
	h := Activated(discardLogger(), accounts)(okHandler(&reached))

	req := withSession(httptest.NewRequest(http.MethodPatch, "/", nil), "a1b2c3d4")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Please verify your email address", decodeBody(t, rec).Message)
	assert.False(t, reached)
}

func TestActivated_PassesVerifiedAccount(t *testing.T) {
	t.Parallel()

	accounts := fakeAccounts{"a1b2c3d4": {ID: "a1b2c3d4", Activated: true}}

	var reached bool
	h := Activated(discardLogger(), accounts)(okHandler(&reached))

	req := withSession(httptest.NewRequest(http.MethodPatch, "/", nil), "a1b2c3d4")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.True(t, reached)
}

func TestAccessKey_Cases(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		query      string
		authorizer fakeAuthorizer
		wantCode   int
		wantMsg    string
	}{
		{
			name:     "missing key",
			query:    "",
			wantCode: http.StatusUnauthorized,
			wantMsg:  "Failed to authenticate token",
		},
		{
			name:       "bad signature",
			query:      "?accessKey=garbage",
			authorizer: fakeAuthorizer{err: tokens.ErrInvalid},
			wantCode:   http.StatusUnauthorized,
			wantMsg:    "Failed to authenticate token",
		},
		{
			name:       "unknown device",
			query:      "?accessKey=some-key",
			authorizer: fakeAuthorizer{err: storage.ErrDeviceNotFound},
			wantCode:   http.StatusUnauthorized,
			wantMsg:    "Device does not exist",
		},
		{
			name:       "rotated key",
			query:      "?accessKey=stale-key",
			authorizer: fakeAuthorizer{err: auth.ErrKeyMismatch},
			wantCode:   http.StatusUnauthorized,
			wantMsg:    "Invalid access key provided",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var reached bool
			h := AccessKey(discardLogger(), tc.authorizer)(okHandler(&reached))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/"+tc.query, nil))

			assert.Equal(t, tc.wantCode, rec.Code)
			assert.Equal(t, tc.wantMsg, decodeBody(t, rec).Message)
			assert.False(t, reached)
		})
	}
}

func TestAccessKey_ValidKeyExposesDeviceID(t *testing.T) {
	t.Parallel()

	var gotID string
	h := AccessKey(discardLogger(), fakeAuthorizer{deviceID: "deadbeef"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := DeviceIDFromContext(r.Context())
			require.True(t, ok)
			gotID = id
		}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/?accessKey=good-key", nil))

	assert.Equal(t, "deadbeef", gotID)
}
