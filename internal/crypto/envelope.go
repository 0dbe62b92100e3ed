package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	AlgRSAOAEP256 = "RSA-OAEP-256"
	EncAES256GCM  = "AES-256-GCM"
	VerV1         = 1

	aesKeySize = 32
)

var (
	ErrNilKey       = errors.New("nil key")
	ErrBadParams    = errors.New("bad envelope params")
	ErrBadB64       = errors.New("bad base64 field")
	ErrWrongKeySize = errors.New("wrong AES key size")
	ErrWrongIV      = errors.New("wrong IV size")
	ErrEmptyCipher  = errors.New("empty ciphertext")
)

// Envelope is the JSON body of a sealed request. Binary fields are base64.
type Envelope struct {
	V   int    `json:"v"`
	Alg string `json:"alg"`
	Enc string `json:"enc"`
	EK  string `json:"ek"` // AES key sealed with RSA-OAEP
	IV  string `json:"iv"` // GCM nonce
	CT  string `json:"ct"` // ciphertext with tag
}

func newGCM(key []byte) (cipher.AEAD, error) {
	blk, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	return cipher.NewGCM(blk)
}

// EncryptEnvelope seals plain with a fresh AES-256-GCM key and wraps the key
// with RSA-OAEP(SHA-256). Agents pass gzipped JSON as plain.
func EncryptEnvelope(pub *rsa.PublicKey, plain []byte) ([]byte, error) {
	if pub == nil {
		return nil, ErrNilKey
	}

	aesKey := make([]byte, aesKeySize)
	if _, err := rand.Read(aesKey); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	gcm, err := newGCM(aesKey)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ek, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, aesKey, nil)
	if err != nil {
		return nil, fmt.Errorf("wrap key: %w", err)
	}

	return json.Marshal(Envelope{
		V:   VerV1,
		Alg: AlgRSAOAEP256,
		Enc: EncAES256GCM,
		EK:  base64.StdEncoding.EncodeToString(ek),
		IV:  base64.StdEncoding.EncodeToString(iv),
		CT:  base64.StdEncoding.EncodeToString(gcm.Seal(nil, iv, plain, nil)),
	})
}

// DecryptEnvelope opens an envelope produced by EncryptEnvelope.
func DecryptEnvelope(priv *rsa.PrivateKey, envBytes []byte) ([]byte, error) {
	if priv == nil {
		return nil, ErrNilKey
	}
	var env Envelope
	if err := json.Unmarshal(envBytes, &env); err != nil {
		return nil, err
	}
	if env.V != VerV1 || env.Alg != AlgRSAOAEP256 || env.Enc != EncAES256GCM {
		return nil, ErrBadParams
	}

	var ek, iv, ct []byte
	for _, f := range []struct {
		dst *[]byte
		src string
	}{{&ek, env.EK}, {&iv, env.IV}, {&ct, env.CT}} {
		b, err := base64.StdEncoding.DecodeString(f.src)
		if err != nil {
			return nil, ErrBadB64
		}
		*f.dst = b
	}
	if len(iv) != 12 {
		return nil, ErrWrongIV
	}
	if len(ct) == 0 {
		return nil, ErrEmptyCipher
	}

	aesKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, ek, nil)
	if err != nil {
		return nil, fmt.Errorf("unwrap key: %w", err)
	}
	if len(aesKey) != aesKeySize {
		return nil, ErrWrongKeySize
	}
	gcm, err := newGCM(aesKey)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, iv, ct, nil)
}
