// Package analysis talks to the external bias analysis service.
//
// The service receives a CSV upload and returns an opaque result; this
// package only transports it. Analysis calls are not retried: the first
// failure is returned to the caller.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/and161185/biasmeter/model"
)

var ErrNoFile = errors.New("no file selected")

// APIError is a non-2xx answer of the analysis service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("analysis service returned status %d", e.Status)
	}
	return fmt.Sprintf("analysis service returned status %d: %s", e.Status, e.Message)
}

// Upload is a file submitted for analysis.
type Upload struct {
	Filename string
	Content  io.Reader
	Industry string
}

// Client calls the analysis service at BaseURL.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client. A nil hc gets a client with a 30 second timeout.
func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: hc}
}

// Analyze uploads a CSV file and returns the analysis result.
func (c *Client) Analyze(ctx context.Context, up Upload) (model.AnalysisResult, error) {
	if up.Content == nil || up.Filename == "" {
		return model.AnalysisResult{}, ErrNoFile
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", up.Filename)
	if err != nil {
		return model.AnalysisResult{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, up.Content); err != nil {
		return model.AnalysisResult{}, fmt.Errorf("copy file: %w", err)
	}
	if err := mw.WriteField("industry", up.Industry); err != nil {
		return model.AnalysisResult{}, fmt.Errorf("write industry: %w", err)
	}
	if err := mw.Close(); err != nil {
		return model.AnalysisResult{}, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/bias/analyze", &body)
	if err != nil {
		return model.AnalysisResult{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.AnalysisResult{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.AnalysisResult{}, readAPIError(resp)
	}

	var res model.AnalysisResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return model.AnalysisResult{}, fmt.Errorf("decode result: %w", err)
	}
	if res.Status == "" {
		res.Status = Status(res.BiasScore)
	}
	if res.Metrics.RiskLevel == "" {
		res.Metrics.RiskLevel = RiskLevel(res.BiasScore)
	}
	return res, nil
}

func readAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var payload struct {
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &payload); err == nil {
		apiErr.Message = payload.Message
	}
	return apiErr
}

// Health checks that the analysis service answers its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/bias/health", nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &APIError{Status: resp.StatusCode}
	}
	return nil
}

// Status labels a bias score (0..100, lower is better).
func Status(score float64) string {
	switch {
	case score < 15:
		return "Low Bias"
	case score < 30:
		return "Moderate Bias"
	case score < 45:
		return "High Bias"
	default:
		return "Critical Bias"
	}
}

// RiskLevel grades a bias score.
func RiskLevel(score float64) string {
	switch {
	case score < 15:
		return "Low"
	case score < 30:
		return "Medium"
	case score < 45:
		return "High"
	default:
		return "Critical"
	}
}
