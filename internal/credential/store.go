package credential

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/micro-ha/deck-automations/plugin/internal/model"
)

const defaultLoadWait = 2 * time.Second

// Host is the part of the host connection that persists plugin-wide settings.
type Host interface {
	RequestGlobalSettings(ctx context.Context) error
	SetGlobalSettings(ctx context.Context, settings model.GlobalSettings) error
}

// HostStore keeps the shared API key in the host's global settings and caches
// the last value the host reported.
type HostStore struct {
	host   Host
	logger *slog.Logger
	wait   time.Duration

	mu       sync.RWMutex
	loaded   bool
	settings model.GlobalSettings
	loadedCh chan struct{}
	once     sync.Once
}

func NewHostStore(host Host, logger *slog.Logger) *HostStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &HostStore{
		host:     host,
		logger:   logger,
		wait:     defaultLoadWait,
		loadedCh: make(chan struct{}),
	}
}

// WithLoadWait overrides how long the first Get waits for the host to answer.
func (s *HostStore) WithLoadWait(wait time.Duration) *HostStore {
	if wait > 0 {
		s.wait = wait
	}
	return s
}

// Get returns the stored key. Absence and every read failure yield ("", false).
// When the host does not answer in time the key is treated as absent until
// the next Update.
func (s *HostStore) Get(ctx context.Context) (string, bool) {
	if key, loaded := s.cached(); loaded {
		return key, key != ""
	}

	if err := s.host.RequestGlobalSettings(ctx); err != nil {
		s.logger.Warn("global settings request failed", "err", err)
		return "", false
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.wait)
	defer cancel()
	select {
	case <-s.loadedCh:
	case <-waitCtx.Done():
		s.logger.Warn("global settings not received", "err", waitCtx.Err())
		if ctx.Err() == nil {
			s.settleAbsent()
		}
		return "", false
	}

	key, _ := s.cached()
	return key, key != ""
}

// Set persists key as the shared API key. Callers validate beforehand.
func (s *HostStore) Set(ctx context.Context, key string) error {
	settings := model.GlobalSettings{APIKey: key}
	if err := s.host.SetGlobalSettings(ctx, settings); err != nil {
		return err
	}
	s.Update(settings)
	return nil
}

// Update records settings pushed by the host.
func (s *HostStore) Update(settings model.GlobalSettings) {
	s.mu.Lock()
	s.loaded = true
	s.settings = settings
	s.mu.Unlock()
	s.once.Do(func() { close(s.loadedCh) })
}

func (s *HostStore) settleAbsent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = true
}

func (s *HostStore) cached() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.APIKey, s.loaded
}
