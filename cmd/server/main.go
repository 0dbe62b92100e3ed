package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/and161185/biasmeter/internal/alerting"
	"github.com/and161185/biasmeter/internal/buildinfo"
	"github.com/and161185/biasmeter/internal/config"
	"github.com/and161185/biasmeter/internal/crypto"
	"github.com/and161185/biasmeter/internal/server"
	"github.com/and161185/biasmeter/storage"
	"github.com/and161185/biasmeter/storage/inmemory"
	"github.com/and161185/biasmeter/storage/postgres"
	"github.com/and161185/biasmeter/storage/redisstore"
)

func main() {
	buildinfo.PrintBuildInfo(os.Stdout, "server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.NewServerConfig()
	defer func() { _ = cfg.Logger.Sync() }()

	archive, closer, err := openArchive(ctx, cfg)
	if err != nil {
		cfg.Logger.Fatal(err)
	}
	defer closer.Close()

	opts, err := serverOptions(cfg)
	if err != nil {
		cfg.Logger.Fatal(err)
	}

	cfg.Logger.Infof("Server config: Addr=%s, StoreInterval=%d, FileStoragePath=%q, Restore=%t, DatabaseDSN set=%t, Redis=%q, Analyzer=%s",
		cfg.Addr,
		cfg.StoreInterval,
		cfg.FileStoragePath,
		cfg.Restore,
		cfg.DatabaseDsn != "",
		cfg.RedisAddr,
		cfg.AnalyzerURL,
	)

	srv, err := server.NewServer(archive, cfg, opts...)
	if err != nil {
		cfg.Logger.Fatal(err)
	}
	if err := srv.Run(ctx); err != nil {
		cfg.Logger.Fatal(err)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openArchive picks PostgreSQL, then Redis, then the in-memory archive.
func openArchive(ctx context.Context, cfg *config.ServerConfig) (storage.Archive, io.Closer, error) {
	switch {
	case cfg.DatabaseDsn != "":
		st, err := postgres.Open(ctx, cfg.DatabaseDsn)
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil
	case cfg.RedisAddr != "":
		st, err := redisstore.Open(ctx, cfg.RedisAddr, redisstore.Options{})
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil
	default:
		return inmemory.NewMemStorage(0), nopCloser{}, nil
	}
}

func serverOptions(cfg *config.ServerConfig) ([]server.Option, error) {
	var opts []server.Option
	if cfg.ProfilesPath != "" {
		profiles, err := alerting.LoadProfiles(cfg.ProfilesPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, server.WithProfiles(profiles))
	}
	if cfg.CryptoKeyPath != "" {
		key, err := crypto.LoadPrivateKey(cfg.CryptoKeyPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, server.WithPrivateKey(key))
	}
	return opts, nil
}
