// Package crypto loads RSA keys and seals agent payloads in a hybrid
// RSA-OAEP / AES-GCM envelope.
package crypto

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

var (
	ErrNoPEMBlocks    = errors.New("no PEM blocks found")
	ErrNotRSAPublic   = errors.New("PEM is not an RSA public key")
	ErrNotRSAPrivate  = errors.New("PEM is not an RSA private key")
	ErrUnsupportedPEM = errors.New("unsupported PEM block type")
)

// LoadPublicKey reads an RSA public key from a PEM file.
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	return LoadPublicKeyFromBytes(b)
}

// LoadPrivateKey reads an RSA private key from a PEM file.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	return LoadPrivateKeyFromBytes(b)
}

// firstKey walks the PEM blocks and returns what parse yields for the first
// block it knows. parse reports ok=false for block types it skips.
func firstKey[K any](pemBytes []byte, parse func(*pem.Block) (K, bool, error)) (K, error) {
	var zero K
	found := false
	for {
		var block *pem.Block
		block, pemBytes = pem.Decode(pemBytes)
		if block == nil {
			break
		}
		found = true
		key, ok, err := parse(block)
		if err != nil {
			return zero, err
		}
		if ok {
			return key, nil
		}
	}
	if !found {
		return zero, ErrNoPEMBlocks
	}
	return zero, ErrUnsupportedPEM
}

// LoadPublicKeyFromBytes parses "PUBLIC KEY" (PKIX) or "RSA PUBLIC KEY" (PKCS#1) PEM data.
// Other blocks are skipped.
func LoadPublicKeyFromBytes(pemBytes []byte) (*rsa.PublicKey, error) {
	return firstKey(pemBytes, func(block *pem.Block) (*rsa.PublicKey, bool, error) {
		switch block.Type {
		case "PUBLIC KEY":
			pub, err := x509.ParsePKIXPublicKey(block.Bytes)
			if err != nil {
				return nil, false, fmt.Errorf("parse PKIX public key: %w", err)
			}
			rsaPub, ok := pub.(*rsa.PublicKey)
			if !ok {
				return nil, false, ErrNotRSAPublic
			}
			return rsaPub, true, nil
		case "RSA PUBLIC KEY":
			pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
			if err != nil {
				return nil, false, fmt.Errorf("parse PKCS1 public key: %w", err)
			}
			return pub, true, nil
		}
		return nil, false, nil
	})
}

// LoadPrivateKeyFromBytes parses "RSA PRIVATE KEY" (PKCS#1) or "PRIVATE KEY" (PKCS#8) PEM data.
// Encrypted keys are not supported.
func LoadPrivateKeyFromBytes(pemBytes []byte) (*rsa.PrivateKey, error) {
	return firstKey(pemBytes, func(block *pem.Block) (*rsa.PrivateKey, bool, error) {
		switch block.Type {
		case "RSA PRIVATE KEY":
			priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
			if err != nil {
				return nil, false, fmt.Errorf("parse PKCS1 private key: %w", err)
			}
			return priv, true, nil
		case "PRIVATE KEY":
			key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, false, fmt.Errorf("parse PKCS8 private key: %w", err)
			}
			priv, ok := key.(*rsa.PrivateKey)
			if !ok {
				return nil, false, ErrNotRSAPrivate
			}
			return priv, true, nil
		}
		return nil, false, nil
	})
}
