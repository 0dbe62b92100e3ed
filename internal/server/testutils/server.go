// Package testutils builds servers for handler tests.
package testutils

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/and161185/biasmeter/internal/alerting"
	"github.com/and161185/biasmeter/internal/analysis"
	"github.com/and161185/biasmeter/internal/config"
	"github.com/and161185/biasmeter/internal/server"
	"github.com/and161185/biasmeter/model"
	"github.com/and161185/biasmeter/storage/inmemory"
	"go.uber.org/zap"
)

// StubAnalyzer answers analysis calls with fixed values and remembers the uploads.
type StubAnalyzer struct {
	Result    model.AnalysisResult
	Err       error
	HealthErr error

	mu      sync.Mutex
	uploads []analysis.Upload
}

func (a *StubAnalyzer) Analyze(_ context.Context, up analysis.Upload) (model.AnalysisResult, error) {
	a.mu.Lock()
	a.uploads = append(a.uploads, up)
	a.mu.Unlock()
	return a.Result, a.Err
}

func (a *StubAnalyzer) Health(context.Context) error { return a.HealthErr }

// Uploads returns the uploads received so far.
func (a *StubAnalyzer) Uploads() []analysis.Upload {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]analysis.Upload(nil), a.uploads...)
}

// NewTestConfig returns a quiet config writing its archive under a temp dir.
func NewTestConfig(tb testing.TB) *config.ServerConfig {
	tb.Helper()
	return &config.ServerConfig{
		Addr:            "localhost:0",
		FileStoragePath: filepath.Join(tb.TempDir(), "archive.json"),
		Logger:          zap.NewNop().Sugar(),
	}
}

// NewTestServer builds a server on an in-memory archive with a stub analyzer
// and deterministic alerts. opts are applied after the defaults.
func NewTestServer(tb testing.TB, opts ...server.Option) *server.Server {
	tb.Helper()
	defaults := []server.Option{
		server.WithAnalyzer(&StubAnalyzer{}),
		server.WithAlertGate(alerting.AlwaysGate),
	}
	srv, err := server.NewServer(inmemory.NewMemStorage(0), NewTestConfig(tb), append(defaults, opts...)...)
	if err != nil {
		tb.Fatalf("new server: %v", err)
	}
	tb.Cleanup(func() {
		srv.Monitors.Close(context.Background())
		srv.Hub.Close()
	})
	return srv
}
