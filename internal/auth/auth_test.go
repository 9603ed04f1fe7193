package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSupabase(t *testing.T, h http.HandlerFunc) (*SupabaseVerifier, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		h(w, r)
	}))
	t.Cleanup(ts.Close)
	v := NewSupabaseVerifierWithClient(ts.URL+"/", "anon", ts.Client())
	v.retryDelay = time.Millisecond
	t.Cleanup(v.Close)
	return v, &calls
}

func TestSupabaseVerifyCachesSession(t *testing.T) {
	v, calls := newSupabase(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write([]byte(`{"id":"user-1","email":"a@example.com"}`))
	})

	for range 3 {
		u, err := v.Verify(context.Background(), "tok")
		require.NoError(t, err)
		assert.Equal(t, User{ID: "user-1", Email: "a@example.com"}, u)
	}
	assert.EqualValues(t, 1, calls.Load())
}

func TestSupabaseVerifyRejectsInvalidToken(t *testing.T) {
	v, calls := newSupabase(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := v.Verify(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrInvalidSession)
	assert.EqualValues(t, 1, calls.Load(), "401 is not retried")

	_, err = v.Verify(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidSession)
	assert.EqualValues(t, 1, calls.Load(), "empty token makes no request")
}

func TestSupabaseVerifyRetriesServerErrors(t *testing.T) {
	v, calls := newSupabase(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := v.Verify(context.Background(), "tok")
	assert.Error(t, err)
	assert.EqualValues(t, 3, calls.Load())
}

func TestSessionCacheExpires(t *testing.T) {
	c := newSessionCache(time.Minute)
	defer c.close()
	now := time.Now()
	c.now = func() time.Time { return now }

	c.put("tok", User{ID: "u1"})
	u, ok := c.get("tok")
	require.True(t, ok)
	assert.Equal(t, "u1", u.ID)

	now = now.Add(2 * time.Minute)
	_, ok = c.get("tok")
	assert.False(t, ok)

	c.sweep()
	assert.Zero(t, c.len())
}

func TestSessionCacheCleanupTick(t *testing.T) {
	c := newSessionCache(50 * time.Millisecond)
	defer c.close()
	c.put("tok", User{ID: "u1"})

	assert.Eventually(t, func() bool { return c.len() == 0 }, time.Second, 10*time.Millisecond)
}

type staticVerifier map[string]User

func (s staticVerifier) Verify(_ context.Context, token string) (User, error) {
	if u, ok := s[token]; ok {
		return u, nil
	}
	return User{}, ErrInvalidSession
}

func TestMiddleware(t *testing.T) {
	verifier := staticVerifier{"good": {ID: "user-1"}}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, _ := UserFromContext(r.Context())
		w.Write([]byte("ok:" + u.ID))
	})
	h := Middleware(verifier, Options{})(next)

	tests := []struct {
		name     string
		path     string
		token    string
		cookie   string
		wantCode int
		wantLoc  string
		wantBody string
	}{
		{name: "health is exempt", path: "/health", wantCode: 200, wantBody: "ok:"},
		{name: "static is exempt", path: "/static/app.js", wantCode: 200, wantBody: "ok:"},
		{name: "page without session", path: "/settings", wantCode: 302, wantLoc: "/login?redirectedFrom=%2Fsettings"},
		{name: "api without session", path: "/api/chat", wantCode: 401},
		{name: "api with bad token", path: "/api/chat", token: "bad", wantCode: 401},
		{name: "api with bearer", path: "/api/chat", token: "good", wantCode: 200, wantBody: "ok:user-1"},
		{name: "page with cookie", path: "/settings", cookie: "good", wantCode: 200, wantBody: "ok:user-1"},
		{name: "login signed out", path: "/login", wantCode: 200, wantBody: "ok:"},
		{name: "login signed in", path: "/login", cookie: "good", wantCode: 302, wantLoc: "/"},
		{name: "signup signed in", path: "/signup", token: "good", wantCode: 302, wantLoc: "/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: CookieName, Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantLoc != "" {
				assert.Equal(t, tt.wantLoc, w.Header().Get("Location"))
			}
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
			}
			if tt.wantCode == 401 {
				assert.JSONEq(t, `{"error":"Unauthorized"}`, w.Body.String())
			}
		})
	}
}

func TestMiddlewareDisabled(t *testing.T) {
	h := Middleware(staticVerifier{}, Options{Disabled: true})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chat", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
