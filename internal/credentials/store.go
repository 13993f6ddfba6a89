package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"call-insights-go/internal/logger"
)

// ErrNotConfigured means no credentials could be resolved from the handout
// endpoint, the cache, or the local file. Callers treat it as a
// feature-disabled state, not a crash.
var ErrNotConfigured = errors.New("credentials not configured")

const cacheKey = "provider-credentials"

// Credentials is the provider API key plus the assistant the dashboard
// operates on.
type Credentials struct {
	APIKey      string `json:"apiKey"`
	AssistantID string `json:"assistantId"`
}

// Store resolves credentials from a remote handout endpoint, with a TTL
// cache in front and a local file as last-known-good fallback. Set and
// Clear cover user-entered keys.
type Store struct {
	handoutURL string
	filePath   string
	rest       *resty.Client
	cache      *gocache.Cache
	mu         sync.Mutex
	log        *logrus.Entry
}

func NewStore(handoutURL, filePath string, ttl time.Duration) *Store {
	return &Store{
		handoutURL: handoutURL,
		filePath:   filePath,
		rest:       resty.New().SetTimeout(10 * time.Second),
		cache:      gocache.New(ttl, 2*ttl),
		log:        logger.New().WithComponent("credentials"),
	}
}

// Get resolves credentials: cache, then the remote handout, then the
// persisted file.
func (s *Store) Get(ctx context.Context) (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.cache.Get(cacheKey); ok {
		return v.(Credentials), nil
	}

	if s.handoutURL != "" {
		var c Credentials
		resp, err := s.rest.R().
			SetContext(ctx).
			SetResult(&c).
			Get(s.handoutURL)
		if err == nil && resp.IsSuccess() && c.APIKey != "" {
			s.cache.SetDefault(cacheKey, c)
			if err := s.persist(c); err != nil {
				s.log.WithError(err).Warn("could not persist credentials")
			}
			return c, nil
		}
		if err != nil {
			s.log.WithError(err).Warn("credential handout unreachable, falling back to local copy")
		} else {
			s.log.WithField("status", resp.StatusCode()).Warn("credential handout rejected request, falling back to local copy")
		}
	}

	if c, err := s.loadFile(); err == nil && c.APIKey != "" {
		s.cache.SetDefault(cacheKey, c)
		return c, nil
	}

	return Credentials{}, ErrNotConfigured
}

// Set stores user-entered credentials in cache and on disk.
func (s *Store) Set(c Credentials) error {
	if c.APIKey == "" {
		return fmt.Errorf("api key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.SetDefault(cacheKey, c)
	return s.persist(c)
}

// Clear drops the cached credentials and removes the persisted file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Delete(cacheKey)
	if err := os.Remove(s.filePath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Store) persist(c Credentials) error {
	if s.filePath == "" {
		return nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(s.filePath, b, 0o600)
}

func (s *Store) loadFile() (Credentials, error) {
	var c Credentials
	if s.filePath == "" {
		return c, os.ErrNotExist
	}
	b, err := os.ReadFile(s.filePath)
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return c, err
	}
	return c, nil
}
