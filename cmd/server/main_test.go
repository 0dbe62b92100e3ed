package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/and161185/biasmeter/internal/config"
	"github.com/and161185/biasmeter/storage/inmemory"
	"github.com/stretchr/testify/require"
)

func TestOpenArchive_DefaultsToMemory(t *testing.T) {
	st, closer, err := openArchive(context.Background(), &config.ServerConfig{})
	require.NoError(t, err)
	require.IsType(t, &inmemory.MemStorage{}, st)
	require.NoError(t, closer.Close())
}

func TestServerOptions(t *testing.T) {
	dir := t.TempDir()

	opts, err := serverOptions(&config.ServerConfig{})
	require.NoError(t, err)
	require.Empty(t, opts)

	profiles := filepath.Join(dir, "profiles.yaml")
	require.NoError(t, os.WriteFile(profiles, []byte(`profiles:
  - name: strict
    rules:
      - {name: critical, title: CRITICAL, severity: high, op: lt, threshold: 80}
`), 0o600))

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keyPath := filepath.Join(dir, "private.pem")
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})
	require.NoError(t, os.WriteFile(keyPath, keyPEM, 0o600))

	opts, err = serverOptions(&config.ServerConfig{ProfilesPath: profiles, CryptoKeyPath: keyPath})
	require.NoError(t, err)
	require.Len(t, opts, 2)

	_, err = serverOptions(&config.ServerConfig{ProfilesPath: filepath.Join(dir, "missing.yaml")})
	require.Error(t, err)
	_, err = serverOptions(&config.ServerConfig{CryptoKeyPath: profiles})
	require.Error(t, err)
}
