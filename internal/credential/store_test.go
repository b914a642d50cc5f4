package credential

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/micro-ha/deck-automations/plugin/internal/model"
)

type fakeHost struct {
	mu         sync.Mutex
	store      *HostStore
	remote     model.GlobalSettings
	answer     bool
	requests   int
	writes     []model.GlobalSettings
	requestErr error
	writeErr   error
}

func (h *fakeHost) RequestGlobalSettings(ctx context.Context) error {
	h.mu.Lock()
	h.requests++
	remote, answer, err := h.remote, h.answer, h.requestErr
	h.mu.Unlock()
	if err != nil {
		return err
	}
	if answer {
		go h.store.Update(remote)
	}
	return nil
}

func (h *fakeHost) SetGlobalSettings(ctx context.Context, settings model.GlobalSettings) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.writeErr != nil {
		return h.writeErr
	}
	h.writes = append(h.writes, settings)
	h.remote = settings
	return nil
}

func newStoreUnderTest(host *fakeHost) *HostStore {
	store := NewHostStore(host, slog.New(slog.NewTextHandler(io.Discard, nil))).WithLoadWait(200 * time.Millisecond)
	host.store = store
	return store
}

func TestHostStoreGetLoadsFromHostOnce(t *testing.T) {
	host := &fakeHost{remote: model.GlobalSettings{APIKey: "abcdefghijkl"}, answer: true}
	store := newStoreUnderTest(host)

	key, ok := store.Get(context.Background())
	if !ok || key != "abcdefghijkl" {
		t.Fatalf("Get() = (%q, %v), want stored key", key, ok)
	}
	if _, ok := store.Get(context.Background()); !ok {
		t.Fatal("second Get() ok = false, want true")
	}
	if host.requests != 1 {
		t.Fatalf("requests = %d, want 1", host.requests)
	}
}

func TestHostStoreGetAbsentWhenNothingStored(t *testing.T) {
	host := &fakeHost{answer: true}
	store := newStoreUnderTest(host)

	key, ok := store.Get(context.Background())
	if ok || key != "" {
		t.Fatalf("Get() = (%q, %v), want absent", key, ok)
	}
}

func TestHostStoreGetFailsSoft(t *testing.T) {
	t.Run("request error", func(t *testing.T) {
		host := &fakeHost{requestErr: errors.New("socket closed")}
		store := newStoreUnderTest(host)
		if _, ok := store.Get(context.Background()); ok {
			t.Fatal("Get() ok = true, want false")
		}
	})

	t.Run("host never answers", func(t *testing.T) {
		host := &fakeHost{}
		store := newStoreUnderTest(host)
		if _, ok := store.Get(context.Background()); ok {
			t.Fatal("Get() ok = true, want false")
		}
	})
}

func TestHostStoreTimeoutCachesAbsenceUntilUpdate(t *testing.T) {
	host := &fakeHost{}
	store := NewHostStore(host, slog.New(slog.NewTextHandler(io.Discard, nil))).WithLoadWait(20 * time.Millisecond)
	host.store = store

	if _, ok := store.Get(context.Background()); ok {
		t.Fatal("first Get() ok = true, want false")
	}

	start := time.Now()
	if _, ok := store.Get(context.Background()); ok {
		t.Fatal("second Get() ok = true, want false")
	}
	if elapsed := time.Since(start); elapsed >= 20*time.Millisecond {
		t.Fatalf("second Get() took %v, want an immediate answer", elapsed)
	}
	if host.requests != 1 {
		t.Fatalf("requests = %d, want 1", host.requests)
	}

	store.Update(model.GlobalSettings{APIKey: "late_key_123456"})
	key, ok := store.Get(context.Background())
	if !ok || key != "late_key_123456" {
		t.Fatalf("Get() after Update = (%q, %v), want late key", key, ok)
	}
	if host.requests != 1 {
		t.Fatalf("requests = %d, want 1 after Update", host.requests)
	}
}

func TestHostStoreCancelledGetRetriesLater(t *testing.T) {
	host := &fakeHost{}
	store := newStoreUnderTest(host)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := store.Get(ctx); ok {
		t.Fatal("Get() ok = true, want false")
	}

	host.mu.Lock()
	host.remote = model.GlobalSettings{APIKey: "abcdefghijkl"}
	host.answer = true
	host.mu.Unlock()

	key, ok := store.Get(context.Background())
	if !ok || key != "abcdefghijkl" {
		t.Fatalf("Get() = (%q, %v), want key from second request", key, ok)
	}
	if host.requests != 2 {
		t.Fatalf("requests = %d, want 2", host.requests)
	}
}

func TestHostStoreSetWritesThrough(t *testing.T) {
	host := &fakeHost{}
	store := newStoreUnderTest(host)

	if err := store.Set(context.Background(), "new_key_123456"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if len(host.writes) != 1 || host.writes[0].APIKey != "new_key_123456" {
		t.Fatalf("writes = %+v, want one write with new key", host.writes)
	}
	key, ok := store.Get(context.Background())
	if !ok || key != "new_key_123456" {
		t.Fatalf("Get() = (%q, %v), want written key", key, ok)
	}
	if host.requests != 0 {
		t.Fatalf("requests = %d, want 0 after write-through", host.requests)
	}
}

func TestHostStoreSetErrorKeepsCache(t *testing.T) {
	host := &fakeHost{writeErr: errors.New("host rejected")}
	store := newStoreUnderTest(host)
	store.Update(model.GlobalSettings{APIKey: "old_key_123456"})

	if err := store.Set(context.Background(), "new_key_123456"); err == nil {
		t.Fatal("Set() error = nil, want non-nil")
	}
	key, _ := store.Get(context.Background())
	if key != "old_key_123456" {
		t.Fatalf("Get() = %q, want previous key", key)
	}
}
