// Package transport holds http.RoundTrippers of the feed agent.
package transport

import (
	"bytes"
	"crypto/rsa"
	"io"
	"net/http"

	"github.com/and161185/biasmeter/internal/crypto"
)

// EncryptedHeader names the envelope version header understood by the server.
const EncryptedHeader = "X-Encrypted"

// EncryptRoundTripper seals gzipped request bodies with crypto.EncryptEnvelope.
// Other requests pass through untouched.
type EncryptRoundTripper struct {
	Base   http.RoundTripper
	PubKey *rsa.PublicKey
}

func (e *EncryptRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	rt := e.Base
	if rt == nil {
		rt = http.DefaultTransport
	}
	if e.PubKey == nil || req.Body == nil || req.Header.Get("Content-Encoding") != "gzip" {
		return rt.RoundTrip(req)
	}

	plain, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	_ = req.Body.Close()

	envBytes, err := crypto.EncryptEnvelope(e.PubKey, plain)
	if err != nil {
		return nil, err
	}

	// RoundTrip must not modify the caller's request
	out := req.Clone(req.Context())
	out.Body = io.NopCloser(bytes.NewReader(envBytes))
	out.ContentLength = int64(len(envBytes))
	out.Header.Set("Content-Type", "application/json")
	out.Header.Set(EncryptedHeader, "v1")
	out.Header.Del("Content-Encoding")

	return rt.RoundTrip(out)
}
