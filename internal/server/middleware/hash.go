package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/and161185/biasmeter/internal/utils"
)

// VerifyHashMiddleware checks the HashSHA256 header of the request body
// against key and signs the response body the same way. An empty key turns
// it off; a request without the header is let through.
func VerifyHashMiddleware(key string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, err := io.ReadAll(r.Body)
			if err != nil {
				writeError(w, http.StatusBadRequest, "bad body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			got := r.Header.Get(utils.HashHeader)
			if got != "" && got != utils.CalculateHash(bodyBytes, key) {
				writeError(w, http.StatusBadRequest, "invalid hash")
				return
			}

			capture := &responseCapture{header: http.Header{}, status: http.StatusOK}
			next.ServeHTTP(capture, r)

			for k, v := range capture.header {
				w.Header()[k] = v
			}
			w.Header().Set(utils.HashHeader, utils.CalculateHash(capture.body.Bytes(), key))
			w.WriteHeader(capture.status)
			_, _ = w.Write(capture.body.Bytes())
		})
	}
}

// responseCapture holds the response back until its hash is known.
type responseCapture struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (r *responseCapture) Header() http.Header         { return r.header }
func (r *responseCapture) WriteHeader(code int)        { r.status = code }
func (r *responseCapture) Write(b []byte) (int, error) { return r.body.Write(b) }
