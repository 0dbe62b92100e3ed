package middleware

import (
	"bytes"
	"crypto/rsa"
	"errors"
	"io"
	"net/http"

	"github.com/and161185/biasmeter/internal/crypto"
)

// EncryptedHeader carries the envelope version of a sealed sample batch.
const EncryptedHeader = "X-Encrypted"

const envelopeVersion = "v1"

// DecryptMiddleware opens sample batches sealed by the agent with
// crypto.EncryptEnvelope and hands the gzipped JSON inside to the next
// handler. Once a key is configured every batch must be sealed. Envelopes
// larger than maxBytes are refused with 413; maxBytes <= 0 means no limit.
// A nil key turns the middleware off.
func DecryptMiddleware(priv *rsa.PrivateKey, maxBytes int64) func(http.Handler) http.Handler {
	if priv == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Header.Get(EncryptedHeader) {
			case envelopeVersion:
			case "":
				writeError(w, http.StatusBadRequest, "sample batch must be encrypted")
				return
			default:
				writeError(w, http.StatusBadRequest, "unsupported envelope version")
				return
			}

			body := r.Body
			if maxBytes > 0 {
				body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			sealed, err := io.ReadAll(body)
			_ = r.Body.Close()
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeError(w, http.StatusRequestEntityTooLarge, "sample batch too large")
					return
				}
				writeError(w, http.StatusBadRequest, "read sample batch")
				return
			}

			batch, err := crypto.DecryptEnvelope(priv, sealed)
			if err != nil {
				writeError(w, http.StatusBadRequest, "cannot open sample batch")
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(batch))
			r.ContentLength = int64(len(batch))
			r.Header.Set("Content-Encoding", "gzip")
			r.Header.Del(EncryptedHeader)
			next.ServeHTTP(w, r)
		})
	}
}
