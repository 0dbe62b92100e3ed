package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

type serverJSON struct {
	Address          *string `json:"address"`
	Restore          *bool   `json:"restore"`
	StoreInterval    *string `json:"store_interval"` // "1s"
	StoreFile        *string `json:"store_file"`
	DatabaseDSN      *string `json:"database_dsn"`
	RedisAddr        *string `json:"redis_addr"`
	CryptoKey        *string `json:"crypto_key"`
	TrustedSubnet    *string `json:"trusted_subnet"`
	AnalyzerURL      *string `json:"analyzer_url"`
	ProfilesFile     *string `json:"profiles_file"`
	MaxStreamClients *int    `json:"max_stream_clients"`
}

type clientJSON struct {
	Address        *string `json:"address"`
	SessionID      *string `json:"session_id"`
	Source         *string `json:"source"`
	ReportInterval *string `json:"report_interval"`
	PollInterval   *string `json:"poll_interval"`
	CryptoKey      *string `json:"crypto_key"`
}

func loadServerJSON(path string) (*serverJSON, error) {
	var cfg serverJSON
	return &cfg, loadJSON(path, &cfg)
}

func loadClientJSON(path string) (*clientJSON, error) {
	var c clientJSON
	return &c, loadJSON(path, &c)
}

func loadJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func parseDurationSeconds(s string) (int, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return int(d / time.Second), nil
}
