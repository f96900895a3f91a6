package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	cookieName = "wallet_session"
	testWallet = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
)

func newTestManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	manager := NewManager(NewRedisStore(client), Options{CookieName: cookieName, TTL: time.Hour}, zap.NewNop())
	return manager, mr
}

func sessionCookie(t *testing.T, recorder *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == cookieName {
			return cookie
		}
	}
	t.Fatalf("response did not set %s cookie", cookieName)
	return nil
}

func TestLoginEstablishesSession(t *testing.T) {
	manager, mr := newTestManager(t)

	recorder := httptest.NewRecorder()
	principal, err := manager.Login(recorder, httptest.NewRequest(http.MethodGet, "/", nil), 42, testWallet)
	require.NoError(t, err)
	assert.Equal(t, int64(42), principal.UserID)

	cookie := sessionCookie(t, recorder)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, 3600, cookie.MaxAge)
	assert.True(t, mr.Exists(keyPrefix+cookie.Value))
	assert.Equal(t, time.Hour, mr.TTL(keyPrefix+cookie.Value))

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.AddCookie(cookie)

	current, err := manager.Current(req)
	require.NoError(t, err)
	assert.Equal(t, int64(42), current.UserID)
	assert.Equal(t, testWallet, current.WalletAddress)
}

func TestLoginRotatesExistingSession(t *testing.T) {
	manager, mr := newTestManager(t)

	first := httptest.NewRecorder()
	_, err := manager.Login(first, httptest.NewRequest(http.MethodGet, "/", nil), 1, testWallet)
	require.NoError(t, err)
	oldCookie := sessionCookie(t, first)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(oldCookie)
	second := httptest.NewRecorder()
	_, err = manager.Login(second, req, 1, testWallet)
	require.NoError(t, err)
	newCookie := sessionCookie(t, second)

	assert.NotEqual(t, oldCookie.Value, newCookie.Value)
	assert.False(t, mr.Exists(keyPrefix+oldCookie.Value))
	assert.True(t, mr.Exists(keyPrefix+newCookie.Value))
}

func TestCurrentWithoutSession(t *testing.T) {
	manager, _ := newTestManager(t)

	_, err := manager.Current(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, ErrNoSession)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: "unknown-token"})
	_, err = manager.Current(req)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSessionExpires(t *testing.T) {
	manager, mr := newTestManager(t)

	recorder := httptest.NewRecorder()
	_, err := manager.Login(recorder, httptest.NewRequest(http.MethodGet, "/", nil), 7, testWallet)
	require.NoError(t, err)

	mr.FastForward(time.Hour + time.Second)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(sessionCookie(t, recorder))
	_, err = manager.Current(req)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestLogout(t *testing.T) {
	manager, mr := newTestManager(t)

	recorder := httptest.NewRecorder()
	_, err := manager.Login(recorder, httptest.NewRequest(http.MethodGet, "/", nil), 7, testWallet)
	require.NoError(t, err)
	cookie := sessionCookie(t, recorder)

	req := httptest.NewRequest(http.MethodPost, "/api/session/logout", nil)
	req.AddCookie(cookie)
	logoutRecorder := httptest.NewRecorder()
	require.NoError(t, manager.Logout(logoutRecorder, req))

	assert.False(t, mr.Exists(keyPrefix+cookie.Value))
	assert.Equal(t, -1, sessionCookie(t, logoutRecorder).MaxAge)

	assert.ErrorIs(t, manager.Logout(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil)), ErrNoSession)
}

func TestLoginFailsWhenRedisIsDown(t *testing.T) {
	manager, mr := newTestManager(t)
	mr.Close()

	_, err := manager.Login(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), 1, testWallet)
	assert.Error(t, err)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()

	client, err := NewRedisClient(context.Background(), addr, "", 0)
	require.NoError(t, err)
	defer client.Close()

	mr.Close()
	_, err = NewRedisClient(context.Background(), addr, "", 0)
	assert.Error(t, err)
}
