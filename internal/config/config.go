package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

/*
Responsibilities
- Hold the engine-wide politeness/fetch/output knobs a run needs regardless
  of which sites it touches: concurrency, timeouts, default user agent,
  retry/backoff parameters, the sites file, output directory, and db path.
- Per-site behavior (kind, base, scope, ...) lives in internal/siteconfig,
  not here — this Config never sees a single site's cfg map.

Built with the same WithDefault(...).Build() chain the rest of this repo's
config-building idiom uses, CLI-overridable exactly as internal/cli does.
*/

type Config struct {
	// Required path to the --sites YAML file.
	sitesPath string
	// Root directory artifacts for a run are written under.
	outDir string
	// Path to the shared sqlite database file.
	dbPath string
	// Overrides the run window to [now-since, now] when > 0.
	since time.Duration

	// Maximum number of per-site worker goroutines running concurrently.
	concurrency int

	// Minimum, fixed waiting time enforced between two HTTP requests to the same host.
	baseDelay time.Duration
	// Randomized variation added on top of the base delay.
	jitter time.Duration
	// Controls the random number generator.
	randomSeed int64
	// Maximum attempts during retry.
	maxAttempt int
	// Initial delay for backoff.
	backoffInitialDuration time.Duration
	// Multiplier during exponential backoff.
	backoffMultiplier float64
	// Capped maximum delay for backoff to stop exponential multiplication.
	backoffMaxDuration time.Duration

	// Maximum time of a single fetch request.
	timeout time.Duration
	// Default user agent, overridable per-site.
	userAgent string
}

type configDTO struct {
	SitesPath              string        `json:"sitesPath"`
	OutDir                 string        `json:"outDir,omitempty"`
	DBPath                 string        `json:"dbPath,omitempty"`
	Since                  time.Duration `json:"since,omitempty"`
	Concurrency            int           `json:"concurrency,omitempty"`
	BaseDelay              time.Duration `json:"baseDelay,omitempty"`
	Jitter                 time.Duration `json:"jitter,omitempty"`
	RandomSeed             int64         `json:"randomSeed,omitempty"`
	MaxAttempt             int           `json:"maxAttempt,omitempty"`
	BackoffInitialDuration time.Duration `json:"backoffInitialDuration,omitempty"`
	BackoffMultiplier      float64       `json:"backoffMultiplier,omitempty"`
	BackoffMaxDuration     time.Duration `json:"backoffMaxDuration,omitempty"`
	Timeout                time.Duration `json:"timeout,omitempty"`
	UserAgent              string        `json:"userAgent,omitempty"`
}

func newConfigFromDTO(dto configDTO) (Config, error) {
	cfg, err := WithDefault(dto.SitesPath).Build()
	if err != nil {
		return Config{}, err
	}

	if dto.OutDir != "" {
		cfg.outDir = dto.OutDir
	}
	if dto.DBPath != "" {
		cfg.dbPath = dto.DBPath
	}
	if dto.Since != 0 {
		cfg.since = dto.Since
	}
	if dto.Concurrency != 0 {
		cfg.concurrency = dto.Concurrency
	}
	if dto.BaseDelay != 0 {
		cfg.baseDelay = dto.BaseDelay
	}
	if dto.Jitter != 0 {
		cfg.jitter = dto.Jitter
	}
	if dto.RandomSeed != 0 {
		cfg.randomSeed = dto.RandomSeed
	}
	if dto.MaxAttempt != 0 {
		cfg.maxAttempt = dto.MaxAttempt
	}
	if dto.BackoffInitialDuration != 0 {
		cfg.backoffInitialDuration = dto.BackoffInitialDuration
	}
	if dto.BackoffMultiplier != 0 {
		cfg.backoffMultiplier = dto.BackoffMultiplier
	}
	if dto.BackoffMaxDuration != 0 {
		cfg.backoffMaxDuration = dto.BackoffMaxDuration
	}
	if dto.Timeout != 0 {
		cfg.timeout = dto.Timeout
	}
	if dto.UserAgent != "" {
		cfg.userAgent = dto.UserAgent
	}

	return cfg, nil
}

func WithConfigFile(path string) (Config, error) {
	_, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrFileDoesNotExist, err.Error())
	}
	configContent, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}
	cfgDTO := configDTO{}

	if err := json.Unmarshal(configContent, &cfgDTO); err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}

	cfg, err := newConfigFromDTO(cfgDTO)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WithDefault creates a new Config for the given --sites path with default
// values for all other fields. sitesPath is mandatory and must not be empty.
func WithDefault(sitesPath string) *Config {
	defaultConfig := Config{
		sitesPath:              sitesPath,
		outDir:                 "data/runs",
		dbPath:                 "data/urls.db",
		since:                  0,
		concurrency:            1,
		baseDelay:              time.Second,
		jitter:                 time.Millisecond * 500,
		randomSeed:             time.Now().UnixNano(),
		maxAttempt:             3,
		backoffInitialDuration: 200 * time.Millisecond,
		backoffMultiplier:      2.0,
		backoffMaxDuration:     8 * time.Second,
		timeout:                time.Second * 20,
		userAgent:              "LinkHarvest/1.0",
	}
	return &defaultConfig
}

func (c *Config) WithSitesPath(path string) *Config {
	c.sitesPath = path
	return c
}

func (c *Config) WithOutDir(dir string) *Config {
	c.outDir = dir
	return c
}

func (c *Config) WithDBPath(path string) *Config {
	c.dbPath = path
	return c
}

func (c *Config) WithSince(since time.Duration) *Config {
	c.since = since
	return c
}

func (c *Config) WithConcurrency(concurrency int) *Config {
	c.concurrency = concurrency
	return c
}

func (c *Config) WithBaseDelay(delay time.Duration) *Config {
	c.baseDelay = delay
	return c
}

func (c *Config) WithJitter(jitter time.Duration) *Config {
	c.jitter = jitter
	return c
}

func (c *Config) WithRandomSeed(seed int64) *Config {
	c.randomSeed = seed
	return c
}

func (c *Config) WithMaxAttempt(attempts int) *Config {
	c.maxAttempt = attempts
	return c
}

func (c *Config) WithBackoffInitialDuration(duration time.Duration) *Config {
	c.backoffInitialDuration = duration
	return c
}

func (c *Config) WithBackoffMultiplier(multiplier float64) *Config {
	c.backoffMultiplier = multiplier
	return c
}

func (c *Config) WithBackoffMaxDuration(duration time.Duration) *Config {
	c.backoffMaxDuration = duration
	return c
}

func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.timeout = timeout
	return c
}

func (c *Config) WithUserAgent(agent string) *Config {
	c.userAgent = agent
	return c
}

func (c *Config) Build() (Config, error) {
	if c.sitesPath == "" {
		return Config{}, fmt.Errorf("%w: sitesPath cannot be empty", ErrInvalidConfig)
	}
	return *c, nil
}

func (c Config) SitesPath() string {
	return c.sitesPath
}

func (c Config) OutDir() string {
	return c.outDir
}

func (c Config) DBPath() string {
	return c.dbPath
}

func (c Config) Since() time.Duration {
	return c.since
}

func (c Config) Concurrency() int {
	return c.concurrency
}

func (c Config) BaseDelay() time.Duration {
	return c.baseDelay
}

func (c Config) Jitter() time.Duration {
	return c.jitter
}

func (c Config) RandomSeed() int64 {
	return c.randomSeed
}

func (c Config) Timeout() time.Duration {
	return c.timeout
}

func (c Config) UserAgent() string {
	return c.userAgent
}

func (c Config) MaxAttempt() int {
	return c.maxAttempt
}

func (c Config) BackoffInitialDuration() time.Duration {
	return c.backoffInitialDuration
}

func (c Config) BackoffMultiplier() float64 {
	return c.backoffMultiplier
}

func (c Config) BackoffMaxDuration() time.Duration {
	return c.backoffMaxDuration
}
