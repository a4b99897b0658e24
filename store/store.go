// Package store persists sealed verification reports and serves the
// per-doctor history. Backends live in subpackages; Memory keeps everything
// in process.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/wudi/rxverify/report"
)

const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 100
)

var ErrNotFound = errors.New("verification not found")

// History saves and lists verification envelopes.
type History interface {
	SaveVerification(ctx context.Context, env report.Envelope) error
	GetVerification(ctx context.Context, id string) (report.Envelope, error)
	History(ctx context.Context, license string, limit int) ([]report.Envelope, error)
}

// NormalizeLimit maps non-positive limits to the default and caps the rest.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

// Memory is an in-process History.
type Memory struct {
	mu      sync.RWMutex
	records map[string]report.Envelope
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]report.Envelope)}
}

func (m *Memory) SaveVerification(_ context.Context, env report.Envelope) error {
	if env.ID == "" {
		return errors.New("verification id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[env.ID] = env
	return nil
}

func (m *Memory) GetVerification(_ context.Context, id string) (report.Envelope, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	env, ok := m.records[id]
	if !ok {
		return report.Envelope{}, ErrNotFound
	}
	return env, nil
}

// History returns the newest envelopes for license first.
func (m *Memory) History(_ context.Context, license string, limit int) ([]report.Envelope, error) {
	m.mu.RLock()
	out := []report.Envelope{}
	for _, env := range m.records {
		if env.DoctorLicense == license {
			out = append(out, env)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if n := NormalizeLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}
