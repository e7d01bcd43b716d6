package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/jinzhu/configor"
	"github.com/joho/godotenv"
)

// Config - Application configuration
type Config struct {
	Check struct {
		Timeout       int    `yaml:"timeout" default:"10" env:"IMGCHECK_TIMEOUT"` // Timeout in seconds
		UserAgent     string `yaml:"user_agent" default:"imgcheck/1.0 (+https://github.com/cnosuke/imgcheck)" env:"IMGCHECK_USER_AGENT"`
		Method        string `yaml:"method" default:"head" env:"IMGCHECK_METHOD"` // head or range
		RangeBytes    int    `yaml:"range_bytes" default:"10" env:"IMGCHECK_RANGE_BYTES"`
		MaxAttempts   int    `yaml:"max_attempts" default:"3" env:"IMGCHECK_MAX_ATTEMPTS"`
		BackoffBaseMS int    `yaml:"backoff_base_ms" default:"2000" env:"IMGCHECK_BACKOFF_BASE_MS"`
		MaxRedirects  int    `yaml:"max_redirects" default:"10" env:"IMGCHECK_MAX_REDIRECTS"`

		// HEADを拒否するサーバーにはrange GETで再試行する。trueで無効化
		DisableHeadFallback bool `yaml:"disable_head_fallback" default:"false" env:"IMGCHECK_DISABLE_HEAD_FALLBACK"`
		InsecureSkipVerify  bool `yaml:"insecure_skip_verify" default:"false" env:"IMGCHECK_INSECURE_SKIP_VERIFY"`
	} `yaml:"check"`

	Run struct {
		Concurrency       int     `yaml:"concurrency" default:"40" env:"IMGCHECK_CONCURRENCY"` // 同時に実行するリクエストの上限
		Strategy          string  `yaml:"strategy" default:"auto" env:"IMGCHECK_STRATEGY"`     // auto, streamed or chunked
		ChunkSize         int     `yaml:"chunk_size" default:"50" env:"IMGCHECK_CHUNK_SIZE"`
		ChunkThreshold    int     `yaml:"chunk_threshold" default:"300" env:"IMGCHECK_CHUNK_THRESHOLD"`
		ChunkDelayMinMS   int     `yaml:"chunk_delay_min_ms" default:"500" env:"IMGCHECK_CHUNK_DELAY_MIN_MS"`
		ChunkDelayMaxMS   int     `yaml:"chunk_delay_max_ms" default:"1500" env:"IMGCHECK_CHUNK_DELAY_MAX_MS"`
		ProgressEvery     int     `yaml:"progress_every" default:"25" env:"IMGCHECK_PROGRESS_EVERY"`
		RequestsPerSecond float64 `yaml:"requests_per_second" default:"0" env:"IMGCHECK_REQUESTS_PER_SECOND"`
		BudgetSeconds     int     `yaml:"budget_seconds" default:"0" env:"IMGCHECK_BUDGET_SECONDS"` // 0 = unlimited
	} `yaml:"run"`

	Server struct {
		MaxURLs int `yaml:"max_urls" default:"200" env:"IMGCHECK_SERVER_MAX_URLS"` // 一度に処理できるURLの最大数
	} `yaml:"server"`

	Checkpoint struct {
		Path string `yaml:"path" env:"IMGCHECK_CHECKPOINT_PATH"`
	} `yaml:"checkpoint"`

	Metrics struct {
		Addr string `yaml:"addr" env:"IMGCHECK_METRICS_ADDR"`
	} `yaml:"metrics"`

	Log struct {
		Path  string `yaml:"path" env:"IMGCHECK_LOG_PATH"`
		Debug bool   `yaml:"debug" default:"false" env:"IMGCHECK_DEBUG"`
	} `yaml:"log"`
}

// LoadConfig - Load configuration file. An empty path loads defaults and environment only.
func LoadConfig(path string) (*Config, error) {
	// .env is optional; a missing file is not an error.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to load .env")
	}

	files := []string{}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.Wrapf(err, "config file %s", path)
		}
		files = append(files, path)
	}

	cfg := &Config{}
	err := configor.New(&configor.Config{
		Debug:      false,
		Verbose:    false,
		Silent:     true,
		AutoReload: false,
	}).Load(cfg, files...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}
	return cfg, nil
}

// Validate rejects values the checker cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Check.Timeout <= 0:
		return errors.Newf("check.timeout must be positive, got %d", c.Check.Timeout)
	case c.Check.Method != "head" && c.Check.Method != "range":
		return errors.Newf("check.method must be head or range, got %q", c.Check.Method)
	case c.Check.MaxAttempts < 1:
		return errors.Newf("check.max_attempts must be at least 1, got %d", c.Check.MaxAttempts)
	case c.Check.BackoffBaseMS < 0:
		return errors.Newf("check.backoff_base_ms must not be negative, got %d", c.Check.BackoffBaseMS)
	case c.Check.RangeBytes < 0:
		return errors.Newf("check.range_bytes must not be negative, got %d", c.Check.RangeBytes)
	case c.Run.Concurrency < 1:
		return errors.Newf("run.concurrency must be at least 1, got %d", c.Run.Concurrency)
	case c.Run.Strategy != "auto" && c.Run.Strategy != "streamed" && c.Run.Strategy != "chunked":
		return errors.Newf("run.strategy must be auto, streamed or chunked, got %q", c.Run.Strategy)
	case c.Run.ChunkSize < 1:
		return errors.Newf("run.chunk_size must be at least 1, got %d", c.Run.ChunkSize)
	case c.Run.ChunkDelayMinMS < 0 || c.Run.ChunkDelayMaxMS < c.Run.ChunkDelayMinMS:
		return errors.Newf("run.chunk_delay range [%d, %d] is invalid", c.Run.ChunkDelayMinMS, c.Run.ChunkDelayMaxMS)
	case c.Run.RequestsPerSecond < 0:
		return errors.Newf("run.requests_per_second must not be negative, got %v", c.Run.RequestsPerSecond)
	case c.Run.BudgetSeconds < 0:
		return errors.Newf("run.budget_seconds must not be negative, got %d", c.Run.BudgetSeconds)
	case c.Server.MaxURLs < 1:
		return errors.Newf("server.max_urls must be at least 1, got %d", c.Server.MaxURLs)
	}
	return nil
}
