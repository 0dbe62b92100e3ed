// Package client is the feed agent: it polls a sample source and reports the
// collected samples to a monitoring session on the server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/and161185/biasmeter/internal/client/transport"
	"github.com/and161185/biasmeter/internal/config"
	"github.com/and161185/biasmeter/internal/crypto"
	"github.com/and161185/biasmeter/internal/source"
	"github.com/and161185/biasmeter/internal/utils"
	"github.com/and161185/biasmeter/model"
	"go.uber.org/zap"
)

// MaxBatch is the largest number of samples sent in one request.
const MaxBatch = 500

// ErrPaused means the session refused samples because it is paused.
var ErrPaused = errors.New("session is paused")

// StatusError is an unexpected answer of the server.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d", e.Code)
}

// Client polls samples and posts them to /api/monitor/{id}/samples.
type Client struct {
	source     source.SampleSource
	config     *config.ClientConfig
	httpClient *http.Client
	logger     *zap.SugaredLogger
	realIP     string

	mu        sync.Mutex
	pending   []model.Sample
	sessionID string
}

// NewClient creates a client reporting samples of src.
func NewClient(src source.SampleSource, cfg *config.ClientConfig) (*Client, error) {
	hc, err := NewHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewClientWithHTTP(src, cfg, hc), nil
}

func detectOutboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()
	if la, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return la.IP.String()
	}
	return ""
}

// NewClientWithHTTP creates a client on a ready http.Client.
func NewClientWithHTTP(src source.SampleSource, cfg *config.ClientConfig, hc *http.Client) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{
		source:     src,
		config:     cfg,
		httpClient: hc,
		logger:     logger,
		realIP:     detectOutboundIP(),
		sessionID:  cfg.SessionID,
	}
}

// NewHTTPClient builds the agent http.Client, sealing bodies when a public key is configured.
func NewHTTPClient(cfg *config.ClientConfig) (*http.Client, error) {
	hc := &http.Client{Timeout: time.Duration(cfg.ClientTimeout) * time.Second}
	rt := http.DefaultTransport
	if cfg.CryptoKeyPath != "" {
		pub, err := crypto.LoadPublicKey(cfg.CryptoKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load public key: %w", err)
		}
		rt = &transport.EncryptRoundTripper{Base: rt, PubKey: pub}
	}
	hc.Transport = rt
	return hc, nil
}

// SessionID returns the session being fed, empty until one is known.
func (clnt *Client) SessionID() string {
	clnt.mu.Lock()
	defer clnt.mu.Unlock()
	return clnt.sessionID
}

// Run polls and reports until ctx is done, then sends what is left.
func (clnt *Client) Run(ctx context.Context) error {
	if _, err := clnt.ensureSession(ctx); err != nil {
		return err
	}

	poll := time.Duration(clnt.config.PollInterval) * time.Second
	report := time.Duration(clnt.config.ReportInterval) * time.Second
	rl := max(clnt.config.RateLimit, 1)

	batches := make(chan []model.Sample, rl)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() { defer wg.Done(); clnt.pollLoop(ctx, poll) }()

	wg.Add(1)
	go func() {
		defer wg.Done()
		clnt.dispatch(ctx, batches, report)
		close(batches)
	}()

	for i := 0; i < rl; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range batches {
				reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx),
					time.Duration(clnt.config.ClientTimeout)*time.Second)
				if err := clnt.sendBatch(reqCtx, b); err != nil {
					clnt.logger.Errorf("send %d samples: %v", len(b), err)
				}
				cancel()
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (clnt *Client) pollLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			clnt.poll(ctx)
		}
	}
}

// poll appends the next sample of the source to the pending batch.
func (clnt *Client) poll(ctx context.Context) {
	s, err := clnt.source.Next(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			clnt.logger.Warnf("poll source: %v", err)
		}
		return
	}
	clnt.mu.Lock()
	clnt.pending = append(clnt.pending, s)
	clnt.mu.Unlock()
}

// take empties the pending batch and splits it into chunks of MaxBatch.
func (clnt *Client) take() [][]model.Sample {
	clnt.mu.Lock()
	pending := clnt.pending
	clnt.pending = nil
	clnt.mu.Unlock()

	var out [][]model.Sample
	for len(pending) > 0 {
		n := min(len(pending), MaxBatch)
		out = append(out, pending[:n])
		pending = pending[n:]
	}
	return out
}

func (clnt *Client) dispatch(ctx context.Context, ch chan<- []model.Sample, interval time.Duration) {
	if interval <= 0 {
		<-ctx.Done()
		for _, b := range clnt.take() {
			ch <- b
		}
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			for _, b := range clnt.take() {
				ch <- b
			}
		case <-ctx.Done():
			for _, b := range clnt.take() {
				ch <- b
			}
			return
		}
	}
}

// ensureSession starts an external session when none is configured.
func (clnt *Client) ensureSession(ctx context.Context) (string, error) {
	if id := clnt.SessionID(); id != "" {
		return id, nil
	}

	req := map[string]any{"source": "external"}
	code, body, err := clnt.postJSON(ctx, "/api/monitor", req, false)
	if err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	if code != http.StatusCreated {
		return "", fmt.Errorf("start session: %w", &StatusError{Code: code})
	}
	var snap struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &snap); err != nil || snap.ID == "" {
		return "", fmt.Errorf("start session: bad response %q", body)
	}

	clnt.mu.Lock()
	clnt.sessionID = snap.ID
	clnt.mu.Unlock()
	clnt.logger.Infof("feeding new session %s", snap.ID)
	return snap.ID, nil
}

// sendBatch posts samples gzipped and signed. A paused session drops the batch.
func (clnt *Client) sendBatch(ctx context.Context, batch []model.Sample) error {
	if len(batch) == 0 {
		return nil
	}
	code, _, err := clnt.postJSON(ctx, "/api/monitor/"+clnt.SessionID()+"/samples", batch, true)
	if err != nil {
		return err
	}
	switch code {
	case http.StatusOK:
		return nil
	case http.StatusConflict:
		return ErrPaused
	default:
		return &StatusError{Code: code}
	}
}

// postJSON sends payload to path and returns the status and the response body.
// Each attempt builds a fresh request so retries resend the whole body.
func (clnt *Client) postJSON(ctx context.Context, path string, payload any, compress bool) (int, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal: %w", err)
	}
	if compress {
		if raw, err = utils.Gzip(raw); err != nil {
			return 0, nil, err
		}
	}

	var (
		code int
		body []byte
	)
	err = utils.WithRetry(ctx, func() error {
		req, e := http.NewRequestWithContext(ctx, http.MethodPost, clnt.config.ServerAddr+path, bytes.NewReader(raw))
		if e != nil {
			return fmt.Errorf("new request: %w", e)
		}
		req.Header.Set("Content-Type", "application/json")
		if compress {
			req.Header.Set("Content-Encoding", "gzip")
		}
		if clnt.realIP != "" {
			req.Header.Set("X-Real-IP", clnt.realIP)
		}
		if clnt.config.Key != "" {
			req.Header.Set(utils.HashHeader, utils.CalculateHash(raw, clnt.config.Key))
		}

		resp, e := clnt.httpClient.Do(req)
		if e != nil {
			return e
		}
		defer resp.Body.Close()
		body, _ = io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		code = resp.StatusCode
		return nil
	})
	if err != nil {
		return 0, nil, fmt.Errorf("send request: %w", err)
	}
	return code, body, nil
}
