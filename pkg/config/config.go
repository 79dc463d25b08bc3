package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env string

	Log       LogConfig
	Solver    SolverConfig
	Benchmark BenchmarkConfig
}

type LogConfig struct {
	Level  string
	Format string
}

// SolverConfig bounds a single solve
type SolverConfig struct {
	TimeBudget    time.Duration
	MaxVariables  uint64
	CheckInterval uint64 // Decisions between two deadline checks
}

type BenchmarkConfig struct {
	Workers int
}

// Load reads configuration from the given file (JSON, YAML or .env) and the environment, environment taking precedence.
// When path is empty an optional ".env" file in the working directory is used
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	optional := path == ""
	if optional {
		path = ".env"
	}

	v := viper.New()
	v.SetConfigFile(path)
	if strings.HasSuffix(path, ".env") {
		v.SetConfigType("env")
	}
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
		if !optional || !missing {
			return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Solver = SolverConfig{
		TimeBudget:    parseDuration(v.GetString("SOLVER_TIME_BUDGET"), 120*time.Second),
		MaxVariables:  v.GetUint64("SOLVER_MAX_VARIABLES"),
		CheckInterval: v.GetUint64("SOLVER_CHECK_INTERVAL"),
	}

	cfg.Benchmark = BenchmarkConfig{
		Workers: v.GetInt("BENCHMARK_WORKERS"),
	}
	if cfg.Benchmark.Workers <= 0 {
		cfg.Benchmark.Workers = 1
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")

	v.SetDefault("SOLVER_TIME_BUDGET", "120s")
	v.SetDefault("SOLVER_MAX_VARIABLES", 50_000_000)
	v.SetDefault("SOLVER_CHECK_INTERVAL", 256)

	v.SetDefault("BENCHMARK_WORKERS", 4)
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	duration, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || duration <= 0 {
		return fallback
	}
	return duration
}
