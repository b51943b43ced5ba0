package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultPort        = 8080
	DefaultTargetBotID = "1261042392413372520"
	DefaultDataDir     = "/var/data"
	DefaultRateLimit   = 120
	DefaultNatsSubject = "cards.indexed"
)

var ErrMissingToken = errors.New("USER_TOKEN environment variable not set")

type Config struct {
	Token          string
	Port           int
	TargetServerID string
	TargetBotID    string
	DataDir        string
	DatabaseFile   string
	LogFile        string
	RateLimit      int
	NatsURL        string
	NatsToken      string
	NatsSubject    string
	AdminJWTSecret string
}

func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// Paths resolves the data directory and files without requiring the token,
// so logging can start before validation.
func Paths() (dataDir, databaseFile, logFile string) {
	dataDir = getenv("DATA_DIR", DefaultDataDir)
	databaseFile = getenv("DATABASE_FILE", filepath.Join(dataDir, "card_database.json"))
	logFile = getenv("LOG_FILE", filepath.Join(dataDir, "card_indexer.log"))
	return
}

func Load() (Config, error) {
	cfg := Config{
		Token:          os.Getenv("USER_TOKEN"),
		TargetServerID: os.Getenv("TARGET_SERVER_ID"),
		TargetBotID:    getenv("TARGET_BOT_ID", DefaultTargetBotID),
		NatsURL:        os.Getenv("NATS_URL"),
		NatsToken:      os.Getenv("NATS_TOKEN"),
		NatsSubject:    getenv("NATS_SUBJECT", DefaultNatsSubject),
		AdminJWTSecret: os.Getenv("ADMIN_JWT_SECRET"),
	}
	cfg.DataDir, cfg.DatabaseFile, cfg.LogFile = Paths()

	var err error
	if cfg.Port, err = getint("PORT", DefaultPort); err != nil {
		return cfg, err
	}
	if cfg.RateLimit, err = getint("RATE_LIMIT", DefaultRateLimit); err != nil {
		return cfg, err
	}

	if cfg.Token == "" {
		return cfg, ErrMissingToken
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s value %q", key, v)
	}
	return n, nil
}
