package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashHeader carries the body signature between the agent and the server.
const HashHeader = "HashSHA256"

// CalculateHash returns the hex SHA-256 of body followed by key.
func CalculateHash(body []byte, key string) string {
	h := sha256.New()
	h.Write(body)
	h.Write([]byte(key))
	return hex.EncodeToString(h.Sum(nil))
}
