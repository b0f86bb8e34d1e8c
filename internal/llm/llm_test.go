package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{APIKey: "k", Model: "m"}, false},
		{"missing key", Config{Model: "m"}, true},
		{"missing model", Config{APIKey: "k"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, defaultBaseURL, c.cfg.BaseURL)
			assert.Equal(t, 512, c.cfg.MaxTokens)
		})
	}
}

func TestClientInvoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "m", req.Model)
		assert.Equal(t, "hello", req.Messages[0].Content)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hi"}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{APIKey: "k", Model: "m", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := c.Invoke(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{
		APIKey: "k", Model: "m", BaseURL: srv.URL,
		Retry: RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	})
	require.NoError(t, err)

	out, err := c.Invoke(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientNonRetryableError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad model"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{APIKey: "k", Model: "m", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Invoke(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad model")
}

func TestMockModel(t *testing.T) {
	m := NewMockModel("one", "two")
	a, _ := m.Invoke(context.Background(), "p1")
	b, _ := m.Invoke(context.Background(), "p2")
	c, _ := m.Invoke(context.Background(), "p3")
	assert.Equal(t, []string{"one", "two", "two"}, []string{a, b, c})
	assert.Len(t, m.Prompts(), 3)

	failing := NewMockModel().WithError(errors.New("throttled"))
	_, err := failing.Invoke(context.Background(), "p")
	assert.EqualError(t, err, "throttled")
}
