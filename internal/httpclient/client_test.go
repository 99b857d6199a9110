package httpclient

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string, retries int) *Client {
	return New(Config{
		BaseURL:    baseURL,
		MaxRetries: retries,
		Backoff:    time.Millisecond,
		RateLimit:  1000,
		RateBurst:  100,
		Headers:    map[string]string{"apikey": "secret"},
	})
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("apikey"))
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3)
	resp, err := c.Get(context.Background(), "/status", nil)
	require.NoError(t, err)

	var body struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, resp.JSON(&body))
	assert.True(t, body.OK)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "no such feed", http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3)
	_, err := c.Get(context.Background(), "feeds/x", nil)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "no such feed")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 2)
	_, err := c.Get(context.Background(), "/", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.True(t, httpErr.IsRateLimited())
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		w.Header().Set("ETag", `"abc"`)
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, -1)
	var buf bytes.Buffer
	headers, n, err := c.Stream(context.Background(), &Request{Path: "/file", Query: map[string][]string{"limit": {"2"}}}, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, "payload", buf.String())
	assert.Equal(t, `"abc"`, headers.Get("ETag"))
}

func TestClient_AbsoluteURLBypassesBase(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/direct", r.URL.Path)
	}))
	defer srv.Close()

	c := newTestClient("http://example.invalid/api", -1)
	_, err := c.Get(context.Background(), srv.URL+"/direct", nil)
	require.NoError(t, err)
}

func TestClient_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, MaxRetries: 5, Backoff: time.Second, RateLimit: 1000, RateBurst: 10})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Get(ctx, "/", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
