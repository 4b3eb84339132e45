package config

import (
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"
)

const (
	ScanMemoryFile  = "file"
	ScanMemoryRedis = "redis"
)

type Config struct {
	HTTPAddr       string `long:"http-addr" env:"HTTP_ADDR" default:":8080" description:"address the HTTP server listens on"`
	PostgresURL    string `long:"postgres-url" env:"POSTGRES_URL" required:"true" description:"Postgres connection string"`
	RedisAddr      string `long:"redis-addr" env:"REDIS_ADDR" required:"true" description:"Redis address of the change bus"`
	JaegerEndpoint string `long:"jaeger-endpoint" env:"JAEGER_ENDPOINT" description:"Jaeger collector endpoint, tracing export is disabled when empty"`
	LogLevel       string `long:"log-level" env:"LOG_LEVEL" default:"info" description:"logrus level"`

	QuietWindow    time.Duration `long:"quiet-window" env:"QUIET_WINDOW" default:"300ms" description:"time without changes before a view is refreshed"`
	RefreshTimeout time.Duration `long:"refresh-timeout" env:"REFRESH_TIMEOUT" default:"5s" description:"timeout of a single source read"`

	ScanMemoryBackend string `long:"scan-memory-backend" env:"SCAN_MEMORY_BACKEND" default:"file" choice:"file" choice:"redis" description:"where scan memory is persisted"`
	ScanMemoryDir     string `long:"scan-memory-dir" env:"SCAN_MEMORY_DIR" default:"." description:"directory of the scan memory file"`
	ScanMemorySession string `long:"scan-memory-session" env:"SCAN_MEMORY_SESSION" default:"default" description:"scan memory session, one set per session"`

	IssuerTokenPrefix string `long:"issuer-token-prefix" env:"ISSUER_TOKEN_PREFIX" default:"tkt" description:"prefix of minted credential tokens"`
}

// Load parses args (without the program name) on top of the environment.
func Load(args []string) (Config, error) {
	var cfg Config

	parser := flags.NewParser(&cfg, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(args); err != nil {
		return Config{}, err
	}

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return Config{}, fmt.Errorf("invalid log level: %w", err)
	}
	if cfg.QuietWindow <= 0 {
		return Config{}, fmt.Errorf("quiet window must be positive, got %s", cfg.QuietWindow)
	}
	if cfg.RefreshTimeout <= 0 {
		return Config{}, fmt.Errorf("refresh timeout must be positive, got %s", cfg.RefreshTimeout)
	}

	return cfg, nil
}

func (c Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
