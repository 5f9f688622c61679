package shared

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
)

func newTestSessions(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "odyssey_session", "secret", time.Hour, false), mr
}

func requestWithCookie(name, value string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if value != "" {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	return req
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	sessions, _ := newTestSessions(t)

	sess, err := sessions.Load(ctx, requestWithCookie(sessions.CookieName(), ""))
	require.NoError(t, err)
	sess.SetUser("7")
	sess.Set(SessionUserNameKey, "Ayu")

	rec := httptest.NewRecorder()
	require.NoError(t, sessions.Commit(ctx, rec, nil, sess))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sessions.CookieValue(sess), cookies[0].Value)

	loaded, err := sessions.Load(ctx, requestWithCookie(sessions.CookieName(), cookies[0].Value))
	require.NoError(t, err)
	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, "7", loaded.User())

	actor, ok := ActorFromContext(ContextWithSession(ctx, loaded))
	require.True(t, ok)
	assert.Equal(t, Actor{ID: 7, Name: "Ayu"}, actor)
}

func TestSessionRejectsForgedCookie(t *testing.T) {
	ctx := context.Background()
	sessions, _ := newTestSessions(t)

	sess, err := sessions.Load(ctx, requestWithCookie(sessions.CookieName(), ""))
	require.NoError(t, err)
	sess.SetUser("7")
	require.NoError(t, sessions.Commit(ctx, httptest.NewRecorder(), nil, sess))

	for _, value := range []string{sess.ID, sess.ID + ".forged", "unknown-id"} {
		loaded, err := sessions.Load(ctx, requestWithCookie(sessions.CookieName(), value))
		require.NoError(t, err)
		assert.NotEqual(t, sess.ID, loaded.ID, value)
		assert.Empty(t, loaded.User())
	}
}

func TestSessionRenewDropsPreviousID(t *testing.T) {
	ctx := context.Background()
	sessions, mr := newTestSessions(t)

	sess, err := sessions.Load(ctx, requestWithCookie(sessions.CookieName(), ""))
	require.NoError(t, err)
	require.NoError(t, sessions.Commit(ctx, httptest.NewRecorder(), nil, sess))
	oldID := sess.ID

	loaded, err := sessions.Load(ctx, requestWithCookie(sessions.CookieName(), sessions.CookieValue(sess)))
	require.NoError(t, err)
	sessions.Renew(loaded)
	require.NoError(t, sessions.Commit(ctx, httptest.NewRecorder(), nil, loaded))

	assert.NotEqual(t, oldID, loaded.ID)
	assert.False(t, mr.Exists(sessionKeyPrefix+oldID))
	assert.True(t, mr.Exists(sessionKeyPrefix+loaded.ID))
}

func TestSessionDestroyClearsCookie(t *testing.T) {
	ctx := context.Background()
	sessions, mr := newTestSessions(t)

	sess, err := sessions.Load(ctx, requestWithCookie(sessions.CookieName(), ""))
	require.NoError(t, err)
	require.NoError(t, sessions.Commit(ctx, httptest.NewRecorder(), nil, sess))

	sessions.Destroy(sess)
	rec := httptest.NewRecorder()
	require.NoError(t, sessions.Commit(ctx, rec, nil, sess))
	assert.False(t, mr.Exists(sessionKeyPrefix+sess.ID))
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, "", rec.Result().Cookies()[0].Value)
}

func TestCSRFTokenLifecycle(t *testing.T) {
	ctx := context.Background()
	csrf := NewCSRFManager("csrf-secret")
	sess := &Session{ID: "abc"}

	require.ErrorIs(t, csrf.VerifyToken(ctx, sess, "x"), ErrCSRFTokenMissing)

	token, err := csrf.EnsureToken(ctx, sess)
	require.NoError(t, err)
	again, err := csrf.EnsureToken(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, token, again)

	require.NoError(t, csrf.VerifyToken(ctx, sess, token))
	require.ErrorIs(t, csrf.VerifyToken(ctx, sess, token+"x"), ErrCSRFTokenMismatch)
	require.ErrorIs(t, csrf.VerifyToken(ctx, nil, token), ErrCSRFTokenMissing)
}
