// Package gateway exposes a running simulation over HTTP: a read-mostly
// REST surface plus a websocket event stream, fronted by the same
// env-driven configuration and middleware stack the retrieval pack's
// payment backend uses for its own API gateway.
package gateway

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the gateway's env-driven configuration, shaped after the
// teacher's pkg/config.Config: one nested struct per concern, loaded with
// getEnv-style helpers so every field has a safe local default.
type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Run        RunConfig
	Checkpoint CheckpointConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

// RunConfig names the files that seed the in-process orchestrator: a run
// configuration TOML and, in scenario mode, a schedule TOML.
type RunConfig struct {
	ConfigPath   string
	ScenarioPath string
}

// CheckpointConfig controls the periodic checkpoint export cron job.
type CheckpointConfig struct {
	ExportPath string
	CronSpec   string
}

// LoadConfig reads gateway configuration from the environment, the way
// pkg/config.Load does for the teacher's gateway.
func LoadConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:         getEnv("GATEWAY_HOST", "0.0.0.0"),
			Port:         getEnv("GATEWAY_PORT", "8090"),
			ReadTimeout:  getDurationEnv("GATEWAY_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("GATEWAY_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDurationEnv("GATEWAY_IDLE_TIMEOUT", 120*time.Second),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "change-this-secret"),
		},
		Run: RunConfig{
			ConfigPath:   getEnv("SIMCASH_CONFIG", "config.toml"),
			ScenarioPath: getEnv("SIMCASH_SCENARIO", ""),
		},
		Checkpoint: CheckpointConfig{
			ExportPath: getEnv("SIMCASH_CHECKPOINT_PATH", "checkpoint.msgpack"),
			CronSpec:   getEnv("SIMCASH_CHECKPOINT_CRON", "@every 5m"),
		},
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
