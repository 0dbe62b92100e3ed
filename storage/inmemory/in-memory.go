package inmemory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/and161185/biasmeter/model"
	"github.com/and161185/biasmeter/storage"
)

// DefaultCapacity bounds the history kept per session and kind.
const DefaultCapacity = 10000

type history struct {
	Samples []model.Sample     `json:"samples"`
	Alerts  []model.AlertEvent `json:"alerts"`
}

// MemStorage is an Archive held in process memory.
type MemStorage struct {
	sessions map[string]*history
	capacity int
	mu       sync.RWMutex
}

// NewMemStorage creates an archive keeping at most capacity samples and
// capacity alerts per session. Non-positive capacity means DefaultCapacity.
func NewMemStorage(capacity int) *MemStorage {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemStorage{
		sessions: make(map[string]*history),
		capacity: capacity,
	}
}

func (store *MemStorage) session(id string) *history {
	h, ok := store.sessions[id]
	if !ok {
		h = &history{}
		store.sessions[id] = h
	}
	return h
}

func (store *MemStorage) SaveSample(ctx context.Context, sessionID string, s model.Sample) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	h := store.session(sessionID)
	h.Samples = capped(append(h.Samples, s), store.capacity)
	return nil
}

func (store *MemStorage) SaveAlert(ctx context.Context, sessionID string, ev model.AlertEvent) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	h := store.session(sessionID)
	h.Alerts = capped(append(h.Alerts, ev), store.capacity)
	return nil
}

func (store *MemStorage) Samples(ctx context.Context, sessionID string, limit int) ([]model.Sample, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidLimit
	}
	store.mu.RLock()
	defer store.mu.RUnlock()

	h, ok := store.sessions[sessionID]
	if !ok {
		return []model.Sample{}, nil
	}
	return tail(h.Samples, limit), nil
}

func (store *MemStorage) Alerts(ctx context.Context, sessionID string, limit int) ([]model.AlertEvent, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidLimit
	}
	store.mu.RLock()
	defer store.mu.RUnlock()

	h, ok := store.sessions[sessionID]
	if !ok {
		return []model.AlertEvent{}, nil
	}
	return tail(h.Alerts, limit), nil
}

// capped drops the oldest entries beyond n.
func capped[T any](s []T, n int) []T {
	if len(s) <= n {
		return s
	}
	return append(s[:0], s[len(s)-n:]...)
}

// tail copies the last n entries.
func tail[T any](s []T, n int) []T {
	if len(s) > n {
		s = s[len(s)-n:]
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}

func (store *MemStorage) SaveToFile(ctx context.Context, filePath string) error {
	store.mu.RLock()
	data, err := json.MarshalIndent(store.sessions, "", "  ")
	empty := len(store.sessions) == 0
	store.mu.RUnlock()

	if empty {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to marshal archive: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// LoadFromFile replaces the archive with a snapshot. A missing file is not an error.
func (store *MemStorage) LoadFromFile(ctx context.Context, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read file: %w", err)
	}

	var sessions map[string]*history
	if err := json.Unmarshal(data, &sessions); err != nil {
		return fmt.Errorf("failed to unmarshal archive: %w", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	store.sessions = make(map[string]*history, len(sessions))
	for id, h := range sessions {
		if h == nil {
			continue
		}
		h.Samples = capped(h.Samples, store.capacity)
		h.Alerts = capped(h.Alerts, store.capacity)
		store.sessions[id] = h
	}
	return nil
}

func (store *MemStorage) Ping(ctx context.Context) error {
	return nil
}

var (
	_ storage.Archive   = (*MemStorage)(nil)
	_ storage.FileStore = (*MemStorage)(nil)
)
