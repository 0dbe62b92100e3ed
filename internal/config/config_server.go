// Package config provides application configuration structures and helpers.
package config

import (
	"flag"
	"log"
	"os"
	"strconv"

	"go.uber.org/zap"
)

// ServerConfig holds the configuration settings for the server.
type ServerConfig struct {
	Addr             string // Server address
	Logger           *zap.SugaredLogger
	LogFile          string // Log file written next to stdout
	StoreInterval    int    // Interval for snapshotting the in-memory archive (in seconds)
	FileStoragePath  string // Path to the archive snapshot
	Restore          bool   // Whether to restore the archive from file on startup
	DatabaseDsn      string // Data Source Name for PostgreSQL
	RedisAddr        string // Redis address or redis:// URL
	Key              string // Key for hash verification
	CryptoKeyPath    string // Path to private key
	TrustedSubnet    string // CIDR, ex. "192.168.1.0/24"
	AnalyzerURL      string // Base URL of the bias analysis service
	ProfilesPath     string // YAML file with extra alert profiles
	MaxStreamClients int    // Limit on concurrent websocket subscribers
}

func defaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Addr:             "localhost:8080",
		LogFile:          "server.log",
		StoreInterval:    300,
		FileStoragePath:  "./tmp/biasmeter-archive.json",
		Restore:          true,
		AnalyzerURL:      "http://localhost:8081",
		MaxStreamClients: 100,
	}
}

// NewServerConfig creates and returns a new ServerConfig by parsing flags and environment variables.
func NewServerConfig() *ServerConfig {
	cfg, err := parseServerConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse server config: %v", err)
	}

	logCfg := zap.NewProductionConfig()
	logCfg.OutputPaths = []string{"stdout"}
	if cfg.LogFile != "" {
		logCfg.OutputPaths = append(logCfg.OutputPaths, cfg.LogFile)
	}
	cfg.Logger = zap.Must(logCfg.Build()).Sugar()
	return cfg
}

// parseServerConfig applies defaults, then flags, then the JSON file for
// whatever the flags left unset, then environment variables.
func parseServerConfig(fs *flag.FlagSet, args []string) (*ServerConfig, error) {
	cfg := defaultServerConfig()

	var fAddr, fFile, fDSN, fRedis, fKey, fCrypto, fConf, fTrustedSubnet, fAnalyzer, fProfiles, fLog strFlag
	var fStoreI, fClients intFlag
	var fRestore boolFlag

	fs.Var(&fAddr, "a", "HTTP server address")
	fs.Var(&fStoreI, "i", "archive snapshot interval (seconds)")
	fs.Var(&fFile, "f", "path to archive snapshot file")
	fs.Var(&fRestore, "r", "restore archive from file")
	fs.Var(&fDSN, "d", "DB connection string")
	fs.Var(&fRedis, "redis", "Redis address")
	fs.Var(&fKey, "k", "Hash key string")
	fs.Var(&fCrypto, "crypto-key", "Path to private key")
	fs.Var(&fConf, "c", "Path to JSON config file")
	fs.Var(&fConf, "config", "Path to JSON config file (alias)")
	fs.Var(&fTrustedSubnet, "t", "trusted subnet")
	fs.Var(&fAnalyzer, "analyzer", "bias analysis service URL")
	fs.Var(&fProfiles, "profiles", "Path to YAML alert profiles")
	fs.Var(&fClients, "max-clients", "max websocket stream clients")
	fs.Var(&fLog, "log-file", "log file path, empty for stdout only")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	setStr(&cfg.Addr, fAddr)
	setInt(&cfg.StoreInterval, fStoreI)
	setStr(&cfg.FileStoragePath, fFile)
	if fRestore.set {
		cfg.Restore = fRestore.v
	}
	setStr(&cfg.DatabaseDsn, fDSN)
	setStr(&cfg.RedisAddr, fRedis)
	setStr(&cfg.Key, fKey)
	setStr(&cfg.CryptoKeyPath, fCrypto)
	setStr(&cfg.TrustedSubnet, fTrustedSubnet)
	setStr(&cfg.AnalyzerURL, fAnalyzer)
	setStr(&cfg.ProfilesPath, fProfiles)
	setInt(&cfg.MaxStreamClients, fClients)
	setStr(&cfg.LogFile, fLog)

	if fConf.v == "" {
		if v := os.Getenv("CONFIG"); v != "" {
			fConf.v = v
		}
	}

	if fConf.v != "" {
		js, err := loadServerJSON(fConf.v)
		if err != nil {
			return nil, err
		}
		jsonStr(&cfg.Addr, js.Address, fAddr)
		if js.Restore != nil && !fRestore.set {
			cfg.Restore = *js.Restore
		}
		if js.StoreInterval != nil && !fStoreI.set {
			if sec, err := parseDurationSeconds(*js.StoreInterval); err == nil {
				cfg.StoreInterval = sec
			}
		}
		jsonStr(&cfg.FileStoragePath, js.StoreFile, fFile)
		jsonStr(&cfg.DatabaseDsn, js.DatabaseDSN, fDSN)
		jsonStr(&cfg.RedisAddr, js.RedisAddr, fRedis)
		jsonStr(&cfg.CryptoKeyPath, js.CryptoKey, fCrypto)
		jsonStr(&cfg.TrustedSubnet, js.TrustedSubnet, fTrustedSubnet)
		jsonStr(&cfg.AnalyzerURL, js.AnalyzerURL, fAnalyzer)
		jsonStr(&cfg.ProfilesPath, js.ProfilesFile, fProfiles)
		if js.MaxStreamClients != nil && !fClients.set {
			cfg.MaxStreamClients = *js.MaxStreamClients
		}
	}

	readServerEnvironment(cfg)
	return cfg, nil
}

func readServerEnvironment(cfg *ServerConfig) {
	if addr := os.Getenv("ADDRESS"); addr != "" {
		cfg.Addr = addr
	}

	storeIntervalEnv := os.Getenv("STORE_INTERVAL")
	if storeIntervalEnv != "" {
		v, err := strconv.Atoi(storeIntervalEnv)
		if err == nil {
			cfg.StoreInterval = v
		} else {
			log.Printf("invalid STORE_INTERVAL env var: %v", err)
		}
	}

	if fsp := os.Getenv("FILE_STORAGE_PATH"); fsp != "" {
		cfg.FileStoragePath = fsp
	} else if fsp := os.Getenv("STORE_FILE"); fsp != "" {
		cfg.FileStoragePath = fsp
	}

	if dbDsn := os.Getenv("DATABASE_DSN"); dbDsn != "" {
		cfg.DatabaseDsn = dbDsn
	}

	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		cfg.RedisAddr = redisAddr
	}

	restoreEnv := os.Getenv("RESTORE")
	if restoreEnv != "" {
		v, err := strconv.ParseBool(restoreEnv)
		if err == nil {
			cfg.Restore = v
		} else {
			log.Printf("invalid RESTORE env var: %v", err)
		}
	}

	if key := os.Getenv("KEY"); key != "" {
		cfg.Key = key
	}

	if cryptokey := os.Getenv("CRYPTO_KEY"); cryptokey != "" {
		cfg.CryptoKeyPath = cryptokey
	}

	if trustedSubnet := os.Getenv("TRUSTED_SUBNET"); trustedSubnet != "" {
		cfg.TrustedSubnet = trustedSubnet
	}

	if analyzer := os.Getenv("ANALYZER_URL"); analyzer != "" {
		cfg.AnalyzerURL = analyzer
	}

	if profiles := os.Getenv("PROFILES_FILE"); profiles != "" {
		cfg.ProfilesPath = profiles
	}

	if clients := os.Getenv("MAX_STREAM_CLIENTS"); clients != "" {
		if v, err := strconv.Atoi(clients); err == nil {
			cfg.MaxStreamClients = v
		} else {
			log.Printf("invalid MAX_STREAM_CLIENTS env var: %v", err)
		}
	}
}
