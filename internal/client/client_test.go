package client

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/and161185/biasmeter/internal/config"
	"github.com/and161185/biasmeter/internal/utils"
	"github.com/and161185/biasmeter/model"
	"github.com/stretchr/testify/require"
)

// counter emits 50, 51, 52, ...
type counter struct {
	mu sync.Mutex
	n  float64
}

func (c *counter) Next(ctx context.Context) (model.Sample, error) {
	if err := ctx.Err(); err != nil {
		return model.Sample{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s := model.Sample{Timestamp: time.Now(), Value: 50 + c.n}
	c.n++
	return s, nil
}

type failing struct{}

func (failing) Next(context.Context) (model.Sample, error) { return model.Sample{}, errors.New("sensor offline") }

// fakeServer records ingested samples and answers session creation.
type fakeServer struct {
	mu      sync.Mutex
	samples []model.Sample
	starts  atomic.Int32
	status  atomic.Int32
}

func (f *fakeServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/monitor", func(w http.ResponseWriter, r *http.Request) {
		f.starts.Add(1)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"new-session"}`))
	})
	mux.HandleFunc("POST /api/monitor/{id}/samples", func(w http.ResponseWriter, r *http.Request) {
		if code := f.status.Load(); code != 0 {
			w.WriteHeader(int(code))
			return
		}
		require.Equal(t, "gzip", r.Header.Get("Content-Encoding"))
		zr, err := gzip.NewReader(r.Body)
		require.NoError(t, err)
		var batch []model.Sample
		require.NoError(t, json.NewDecoder(zr).Decode(&batch))

		f.mu.Lock()
		f.samples = append(f.samples, batch...)
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (f *fakeServer) received() []model.Sample {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Sample(nil), f.samples...)
}

func newTestClient(t *testing.T, src *counter, cfg *config.ClientConfig) (*Client, *fakeServer) {
	t.Helper()
	fs := &fakeServer{}
	ts := httptest.NewServer(fs.handler(t))
	t.Cleanup(ts.Close)
	cfg.ServerAddr = ts.URL
	if cfg.ClientTimeout == 0 {
		cfg.ClientTimeout = 1
	}
	c, err := NewClient(src, cfg)
	require.NoError(t, err)
	return c, fs
}

func TestEnsureSession(t *testing.T) {
	c, fs := newTestClient(t, &counter{}, &config.ClientConfig{})
	id, err := c.ensureSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, "new-session", id)

	_, err = c.ensureSession(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, fs.starts.Load(), "session created once")

	c, fs = newTestClient(t, &counter{}, &config.ClientConfig{SessionID: "given"})
	id, err = c.ensureSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, "given", id)
	require.Zero(t, fs.starts.Load())
}

func TestSendBatch(t *testing.T) {
	c, fs := newTestClient(t, &counter{}, &config.ClientConfig{SessionID: "s"})
	ctx := context.Background()

	require.NoError(t, c.sendBatch(ctx, nil))
	require.NoError(t, c.sendBatch(ctx, []model.Sample{{Value: 70}, {Value: 71}}))
	require.Len(t, fs.received(), 2)

	fs.status.Store(http.StatusConflict)
	require.ErrorIs(t, c.sendBatch(ctx, []model.Sample{{Value: 1}}), ErrPaused)

	fs.status.Store(http.StatusTeapot)
	var se *StatusError
	require.ErrorAs(t, c.sendBatch(ctx, []model.Sample{{Value: 1}}), &se)
	require.Equal(t, http.StatusTeapot, se.Code)
}

func TestSendBatch_SignsGzippedBody(t *testing.T) {
	var gotHash string
	var raw []byte
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHash = r.Header.Get(utils.HashHeader)
		raw, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c := NewClientWithHTTP(&counter{}, &config.ClientConfig{ServerAddr: ts.URL, SessionID: "s", Key: "k"}, ts.Client())
	require.NoError(t, c.sendBatch(context.Background(), []model.Sample{{Value: 80}}))
	require.Equal(t, utils.CalculateHash(raw, "k"), gotHash)
}

func TestSendBatch_RetriesAgainstClosedServer(t *testing.T) {
	old := utils.RetryDelays
	utils.RetryDelays = []time.Duration{time.Millisecond, time.Millisecond}
	t.Cleanup(func() { utils.RetryDelays = old })

	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c := NewClientWithHTTP(&counter{}, &config.ClientConfig{ServerAddr: url, SessionID: "s"}, &http.Client{Timeout: time.Second})
	err := c.sendBatch(context.Background(), []model.Sample{{Value: 80}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "send request")
}

func TestTakeSplitsBatches(t *testing.T) {
	c := NewClientWithHTTP(&counter{}, &config.ClientConfig{}, http.DefaultClient)
	for i := 0; i < MaxBatch+3; i++ {
		c.poll(context.Background())
	}
	batches := c.take()
	require.Len(t, batches, 2)
	require.Len(t, batches[0], MaxBatch)
	require.Len(t, batches[1], 3)
	require.Empty(t, c.take())
}

func TestPoll_SourceError(t *testing.T) {
	c := NewClientWithHTTP(failing{}, &config.ClientConfig{}, http.DefaultClient)
	c.poll(context.Background())
	require.Empty(t, c.take())
}

func TestRun_ReportsAndFlushesOnStop(t *testing.T) {
	src := &counter{}
	c, fs := newTestClient(t, src, &config.ClientConfig{PollInterval: 0, ReportInterval: 0, RateLimit: 2})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return c.SessionID() == "new-session" }, time.Second, 5*time.Millisecond)
	c.poll(ctx)
	c.poll(ctx)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not stop")
	}
	got := fs.received()
	require.Len(t, got, 2)
	require.Equal(t, 50.0, got[0].Value)
	require.Equal(t, 51.0, got[1].Value)
}

func TestRun_SessionStartFails(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := NewClientWithHTTP(&counter{}, &config.ClientConfig{ServerAddr: ts.URL}, ts.Client())
	err := c.Run(context.Background())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusServiceUnavailable, se.Code)
}

func TestNewHTTPClient_BadKeyPath(t *testing.T) {
	_, err := NewHTTPClient(&config.ClientConfig{CryptoKeyPath: "/nonexistent.pem"})
	require.Error(t, err)
}
