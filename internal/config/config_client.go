package config

import (
	"flag"
	"log"
	"os"
	"runtime"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// ClientConfig holds the configuration settings for the feed agent.
type ClientConfig struct {
	ServerAddr     string // Server address
	SessionID      string // Session to feed; empty starts a new external session
	Source         string // Sample generator: "analytics" or "live"
	ReportInterval int    // Interval for sending samples (in seconds)
	PollInterval   int    // Interval for generating samples (in seconds)
	ClientTimeout  int    // HTTP client timeout (in seconds)
	Key            string // Key for hash generation
	RateLimit      int    // Limit on simultaneous outgoing requests
	CryptoKeyPath  string // Path to public key
	Logger         *zap.SugaredLogger
}

func defaultClientConfig() *ClientConfig {
	return &ClientConfig{
		ServerAddr:     "http://localhost:8080",
		Source:         "live",
		ReportInterval: 4,
		PollInterval:   2,
		ClientTimeout:  10,
		RateLimit:      runtime.NumCPU(),
	}
}

// NewClientConfig creates and returns a new ClientConfig by parsing flags and environment variables.
func NewClientConfig() *ClientConfig {
	cfg, err := parseClientConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse agent config: %v", err)
	}
	cfg.Logger = zap.Must(zap.NewProduction()).Sugar()
	return cfg
}

func parseClientConfig(fs *flag.FlagSet, args []string) (*ClientConfig, error) {
	cfg := defaultClientConfig()

	var fAddr, fSession, fSource, fKey, fCrypto, fConf strFlag
	var fRep, fPoll, fTO, fRate intFlag
	fs.Var(&fAddr, "a", "HTTP server address (must include http(s)://)")
	fs.Var(&fSession, "s", "session id to feed")
	fs.Var(&fSource, "source", "sample generator: analytics or live")
	fs.Var(&fRep, "r", "report interval (seconds)")
	fs.Var(&fPoll, "p", "poll interval (seconds)")
	fs.Var(&fTO, "t", "client timeout (seconds)")
	fs.Var(&fKey, "k", "Hash key string")
	fs.Var(&fRate, "l", "rate limit")
	fs.Var(&fCrypto, "crypto-key", "Path to public key")
	fs.Var(&fConf, "c", "Path to JSON config file")
	fs.Var(&fConf, "config", "Path to JSON config file (alias)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	setStr(&cfg.ServerAddr, fAddr)
	setStr(&cfg.SessionID, fSession)
	setStr(&cfg.Source, fSource)
	setInt(&cfg.ReportInterval, fRep)
	setInt(&cfg.PollInterval, fPoll)
	setInt(&cfg.ClientTimeout, fTO)
	setStr(&cfg.Key, fKey)
	setInt(&cfg.RateLimit, fRate)
	setStr(&cfg.CryptoKeyPath, fCrypto)

	if fConf.v == "" {
		if v := os.Getenv("CONFIG"); v != "" {
			fConf.v = v
		}
	}
	if fConf.v != "" {
		js, err := loadClientJSON(fConf.v)
		if err != nil {
			return nil, err
		}
		jsonStr(&cfg.ServerAddr, js.Address, fAddr)
		jsonStr(&cfg.SessionID, js.SessionID, fSession)
		jsonStr(&cfg.Source, js.Source, fSource)
		if js.ReportInterval != nil && !fRep.set {
			if sec, err := parseDurationSeconds(*js.ReportInterval); err == nil {
				cfg.ReportInterval = sec
			}
		}
		if js.PollInterval != nil && !fPoll.set {
			if sec, err := parseDurationSeconds(*js.PollInterval); err == nil {
				cfg.PollInterval = sec
			}
		}
		jsonStr(&cfg.CryptoKeyPath, js.CryptoKey, fCrypto)
	}

	readClientEnvironment(cfg)

	// normalize address
	if !strings.HasPrefix(cfg.ServerAddr, "http://") && !strings.HasPrefix(cfg.ServerAddr, "https://") {
		cfg.ServerAddr = "http://" + cfg.ServerAddr
	}
	return cfg, nil
}

func readClientEnvironment(cfg *ClientConfig) {
	if addr := os.Getenv("ADDRESS"); addr != "" {
		cfg.ServerAddr = addr
	}

	if session := os.Getenv("SESSION_ID"); session != "" {
		cfg.SessionID = session
	}

	if src := os.Getenv("SOURCE"); src != "" {
		cfg.Source = src
	}

	reportIntervalEnv := os.Getenv("REPORT_INTERVAL")
	if reportIntervalEnv != "" {
		v, err := strconv.Atoi(reportIntervalEnv)
		if err == nil {
			cfg.ReportInterval = v
		} else {
			log.Printf("invalid REPORT_INTERVAL env var: %v", err)
		}
	}

	pollIntervallEnv := os.Getenv("POLL_INTERVAL")
	if pollIntervallEnv != "" {
		v, err := strconv.Atoi(pollIntervallEnv)
		if err == nil {
			cfg.PollInterval = v
		} else {
			log.Printf("invalid POLL_INTERVAL env var: %v", err)
		}
	}

	if rateLimit := os.Getenv("RATE_LIMIT"); rateLimit != "" {
		if i, err := strconv.Atoi(rateLimit); err == nil {
			cfg.RateLimit = i
		}
	}

	if key := os.Getenv("KEY"); key != "" {
		cfg.Key = key
	}

	if cryptokey := os.Getenv("CRYPTO_KEY"); cryptokey != "" {
		cfg.CryptoKeyPath = cryptokey
	}
}
