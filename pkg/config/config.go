package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	DefaultProxyPrefix = "https://r.jina.ai/"
	DefaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

type Config struct {
	Target     TargetConfig     `toml:"target" yaml:"target"`
	Crawler    CrawlerConfig    `toml:"crawler" yaml:"crawler"`
	Downloader DownloaderConfig `toml:"downloader" yaml:"downloader"`
	Checkpoint CheckpointConfig `toml:"checkpoint" yaml:"checkpoint"`
	Logging    LoggingConfig    `toml:"logging" yaml:"logging"`
}

type TargetConfig struct {
	RootURL     string `toml:"root_url" yaml:"root_url"`
	MaxDepth    int    `toml:"max_depth" yaml:"max_depth"`
	ProxyPrefix string `toml:"proxy_prefix" yaml:"proxy_prefix"`
}

// PhaseConfig holds the politeness settings shared by the crawl and
// download phases. Durations are strings in time.ParseDuration format.
type PhaseConfig struct {
	UserAgent        string `toml:"user_agent" yaml:"user_agent"`
	Timeout          string `toml:"timeout" yaml:"timeout"`
	DelayMin         string `toml:"delay_min" yaml:"delay_min"`
	DelayMax         string `toml:"delay_max" yaml:"delay_max"`
	RateLimitBackoff string `toml:"rate_limit_backoff" yaml:"rate_limit_backoff"`
	FailureBackoff   string `toml:"failure_backoff" yaml:"failure_backoff"`
}

type CrawlerConfig struct {
	PhaseConfig     `yaml:",inline"`
	CheckpointEvery int  `toml:"checkpoint_every" yaml:"checkpoint_every"`
	RespectRobots   bool `toml:"respect_robots" yaml:"respect_robots"`
}

type DownloaderConfig struct {
	PhaseConfig  `yaml:",inline"`
	FlushEvery   int    `toml:"flush_every" yaml:"flush_every"`
	Workers      int    `toml:"workers" yaml:"workers"`
	ResponsesDir string `toml:"responses_dir" yaml:"responses_dir"`
}

type CheckpointConfig struct {
	Backend string `toml:"backend" yaml:"backend"`
	Dir     string `toml:"dir" yaml:"dir"`
	DSN     string `toml:"dsn" yaml:"dsn"`
}

type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// Default returns the configuration used when no file overrides a value.
func Default() *Config {
	return &Config{
		Target: TargetConfig{
			MaxDepth:    2,
			ProxyPrefix: DefaultProxyPrefix,
		},
		Crawler: CrawlerConfig{
			PhaseConfig: PhaseConfig{
				UserAgent:        DefaultUserAgent,
				Timeout:          "10s",
				DelayMin:         "1s",
				DelayMax:         "3s",
				RateLimitBackoff: "60s",
				FailureBackoff:   "5s",
			},
			CheckpointEvery: 10,
		},
		Downloader: DownloaderConfig{
			PhaseConfig: PhaseConfig{
				UserAgent:        DefaultUserAgent,
				Timeout:          "15s",
				DelayMin:         "2s",
				DelayMax:         "5s",
				RateLimitBackoff: "120s",
				FailureBackoff:   "10s",
			},
			FlushEvery:   5,
			Workers:      1,
			ResponsesDir: "responses",
		},
		Checkpoint: CheckpointConfig{
			Backend: BackendFile,
			Dir:     ".",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a TOML or YAML file on top of the defaults. The format is
// chosen by extension; anything that is not .yaml or .yml is read as TOML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks that the configuration describes a runnable crawl.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Target.RootURL) == "" {
		return ErrNoRootURL
	}
	u, err := url.Parse(c.Target.RootURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %q", ErrInvalidRootURL, c.Target.RootURL)
	}
	if c.Target.MaxDepth < 1 {
		return ErrInvalidMaxDepth
	}

	for _, phase := range []PhaseConfig{c.Crawler.PhaseConfig, c.Downloader.PhaseConfig} {
		if err := phase.validate(); err != nil {
			return err
		}
	}

	if c.Crawler.CheckpointEvery < 1 || c.Downloader.FlushEvery < 1 {
		return ErrInvalidFlushInterval
	}
	if c.Downloader.Workers < 1 {
		return ErrInvalidWorkers
	}

	switch c.Checkpoint.Backend {
	case BackendFile, BackendSQLite:
	case BackendPostgres:
		if c.Checkpoint.DSN == "" {
			return ErrMissingDSN
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Checkpoint.Backend)
	}

	return nil
}

func (p PhaseConfig) validate() error {
	for _, s := range []string{p.Timeout, p.DelayMin, p.DelayMax, p.RateLimitBackoff, p.FailureBackoff} {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidDuration, s)
		}
		if d < 0 {
			return fmt.Errorf("%w: %q", ErrInvalidDuration, s)
		}
	}
	if p.GetDelayMax() < p.GetDelayMin() {
		return ErrInvalidDelayRange
	}
	return nil
}

func (p *PhaseConfig) GetTimeout() time.Duration {
	return parseDuration(p.Timeout, 10*time.Second)
}

func (p *PhaseConfig) GetDelayMin() time.Duration {
	return parseDuration(p.DelayMin, time.Second)
}

func (p *PhaseConfig) GetDelayMax() time.Duration {
	return parseDuration(p.DelayMax, p.GetDelayMin())
}

func (p *PhaseConfig) GetRateLimitBackoff() time.Duration {
	return parseDuration(p.RateLimitBackoff, time.Minute)
}

func (p *PhaseConfig) GetFailureBackoff() time.Duration {
	return parseDuration(p.FailureBackoff, 5*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
