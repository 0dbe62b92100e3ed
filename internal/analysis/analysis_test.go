package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/and161185/biasmeter/model"
	"github.com/stretchr/testify/require"
)

func TestAnalyze_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/bias/analyze", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "hiring", r.FormValue("industry"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		require.Equal(t, "data.csv", hdr.Filename)
		require.Equal(t, "Gender,Selected\nM,1\n", string(data))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(model.AnalysisResult{BiasScore: 32.5, FileName: hdr.Filename})
	}))
	defer ts.Close()

	c := NewClient(ts.URL+"/", ts.Client())
	res, err := c.Analyze(context.Background(), Upload{
		Filename: "data.csv",
		Content:  strings.NewReader("Gender,Selected\nM,1\n"),
		Industry: "hiring",
	})
	require.NoError(t, err)
	require.Equal(t, 32.5, res.BiasScore)
	require.Equal(t, "High Bias", res.Status, "status derived when the service omits it")
	require.Equal(t, "High", res.Metrics.RiskLevel)
	require.Equal(t, "data.csv", res.FileName)
}

func TestAnalyze_NoFileIsNotSent(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, nil)
	_, err := c.Analyze(context.Background(), Upload{Industry: "finance"})
	require.ErrorIs(t, err, ErrNoFile)
	require.Zero(t, calls.Load())
}

func TestAnalyze_APIErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":true,"message":"Failed to analyze file: bad csv"}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, nil)
	_, err := c.Analyze(context.Background(), Upload{Filename: "x.csv", Content: strings.NewReader("x")})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadRequest, apiErr.Status)
	require.Equal(t, "Failed to analyze file: bad csv", apiErr.Message)
	require.EqualValues(t, 1, calls.Load())
}

func TestAnalyze_TransportError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := NewClient(url, nil).Analyze(context.Background(), Upload{Filename: "x.csv", Content: strings.NewReader("x")})
	require.Error(t, err)
}

func TestHealth(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/bias/health" {
			_, _ = w.Write([]byte(`{"status":"UP"}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer ts.Close()

	require.NoError(t, NewClient(ts.URL, nil).Health(context.Background()))
	require.Error(t, NewClient(ts.URL+"/nope", nil).Health(context.Background()))
}

func TestStatusAndRiskLevel(t *testing.T) {
	tests := []struct {
		score  float64
		status string
		risk   string
	}{
		{0, "Low Bias", "Low"},
		{14.9, "Low Bias", "Low"},
		{15, "Moderate Bias", "Medium"},
		{29.9, "Moderate Bias", "Medium"},
		{30, "High Bias", "High"},
		{45, "Critical Bias", "Critical"},
		{100, "Critical Bias", "Critical"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.status, Status(tc.score), "score %v", tc.score)
		require.Equal(t, tc.risk, RiskLevel(tc.score), "score %v", tc.score)
	}
}

func TestFormat(t *testing.T) {
	f := Format("Hiring")
	require.Equal(t, "Hiring", f.Industry)
	require.Equal(t, "Gender,Experience,Position,Selected", f.Format)

	f = Format("space")
	require.Equal(t, "Gender,Feature1,Feature2,Selected", f.Format)
	require.Equal(t, "Analyzes bias in decision-making systems", f.Description)

	require.Len(t, Industries(), 8)
	require.Equal(t, "ecommerce", Industries()[0])
}
