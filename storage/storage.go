// Package storage defines the archive of samples and alerts produced by
// monitoring sessions, and the observer that feeds it.
package storage

import (
	"context"
	"errors"

	"github.com/and161185/biasmeter/model"
)

//go:generate mockgen -destination=mocks/mock_archive.go -package=mocks github.com/and161185/biasmeter/storage Archive

var ErrInvalidLimit = errors.New("limit must be positive")

// Archive keeps the full history of every session, beyond the live window.
// Samples and Alerts return at most limit most recent entries, oldest first.
type Archive interface {
	SaveSample(ctx context.Context, sessionID string, s model.Sample) error
	SaveAlert(ctx context.Context, sessionID string, ev model.AlertEvent) error
	Samples(ctx context.Context, sessionID string, limit int) ([]model.Sample, error)
	Alerts(ctx context.Context, sessionID string, limit int) ([]model.AlertEvent, error)
	Ping(ctx context.Context) error
}

// FileStore is implemented by archives that snapshot to a local file.
type FileStore interface {
	SaveToFile(ctx context.Context, path string) error
	LoadFromFile(ctx context.Context, path string) error
}
