package credentials

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_FetchesFromHandout(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"apiKey":"key-123","assistantId":"asst-1"}`))
	}))
	defer srv.Close()

	s := NewStore(srv.URL, filepath.Join(t.TempDir(), "creds.json"), time.Minute)

	c, err := s.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "key-123", c.APIKey)
	assert.Equal(t, "asst-1", c.AssistantID)

	// Second call is served from cache.
	_, err = s.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestGet_FallsBackToPersistedFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"apiKey":"key-123","assistantId":"asst-1"}`))
	}))

	path := filepath.Join(t.TempDir(), "creds.json")
	s := NewStore(srv.URL, path, time.Nanosecond)
	_, err := s.Get(context.Background())
	require.NoError(t, err)

	// Handout goes away and the cache entry expires.
	srv.Close()
	time.Sleep(10 * time.Millisecond)

	c, err := s.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "key-123", c.APIKey)
}

func TestGet_NotConfigured(t *testing.T) {
	s := NewStore("", filepath.Join(t.TempDir(), "missing.json"), time.Minute)
	_, err := s.Get(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSetAndClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	s := NewStore("", path, time.Minute)

	require.NoError(t, s.Set(Credentials{APIKey: "manual-key", AssistantID: "asst-9"}))
	c, err := s.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "manual-key", c.APIKey)

	require.NoError(t, s.Clear())
	_, err = s.Get(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSet_RequiresAPIKey(t *testing.T) {
	s := NewStore("", "", time.Minute)
	assert.Error(t, s.Set(Credentials{}))
}
