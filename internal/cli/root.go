package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rohmanhakim/linkharvest/internal/build"
	"github.com/rohmanhakim/linkharvest/internal/config"
	"github.com/rohmanhakim/linkharvest/internal/metadata"
	"github.com/rohmanhakim/linkharvest/internal/runner"
	"github.com/spf13/cobra"
)

var (
	cfgFile     string
	sitesPath   string
	outDir      string
	dbPath      string
	since       time.Duration
	concurrency int
	userAgent   string
	timeout     time.Duration
	baseDelay   time.Duration
	jitter      time.Duration
	randomSeed  int64
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "linkharvest",
	Short:   "A polite, incremental link-harvesting engine.",
	Version: build.FullVersion(),
	Long: `linkharvest discovers URLs across a set of configured sites — via their
WordPress REST API, RSS/Atom feed, sitemap, or a bounded crawl — and records
what is new since the last run without fetching full page content.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := InitConfigWithError()
		if err != nil {
			return err
		}

		sink := metadata.NewRecorder("linkharvest")
		run := runner.NewRunner(cfg, &sink)

		result, runErr := run.Run(cmd.Context())
		if runErr != nil {
			return runErr
		}

		fmt.Printf("Run %s: new=%d, sites=%d, out=%s\n", result.RunID, result.NewCount, result.SitesCount, result.OutDir)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen
// once to the rootCmd.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "config file path (e.g., /home/myuser/config.json)")
	rootCmd.PersistentFlags().StringVar(&sitesPath, "sites", "", "path to the sites YAML file (required)")
	rootCmd.PersistentFlags().StringVar(&outDir, "out", "", "root output directory for this run's artifacts")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the shared sqlite database file")
	rootCmd.PersistentFlags().DurationVar(&since, "since", 0, "override the run window to [now-since, now]")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 0, "number of concurrent per-site workers")
	rootCmd.PersistentFlags().StringVar(&userAgent, "user-agent", "", "default user agent string for HTTP requests")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "timeout for a single fetch request")
	rootCmd.PersistentFlags().DurationVar(&baseDelay, "base-delay", 0, "minimum delay enforced between requests to the same host")
	rootCmd.PersistentFlags().DurationVar(&jitter, "jitter", 0, "random jitter added on top of base-delay")
	rootCmd.PersistentFlags().Int64Var(&randomSeed, "random-seed", 0, "seed for the rate limiter's jitter RNG (0 for current time)")
}

// InitConfig builds the engine config from the config file, if any, then CLI
// flag overrides, exiting the process on error.
func InitConfig() config.Config {
	cfg, err := InitConfigWithError()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	return cfg
}

// InitConfigWithError is InitConfig without the os.Exit, for testability.
func InitConfigWithError() (config.Config, error) {
	if cfgFile != "" {
		cfg, err := config.WithConfigFile(cfgFile)
		if err != nil {
			return config.Config{}, fmt.Errorf("error initializing config from file: %w", err)
		}
		return applyFlagOverrides(cfg), nil
	}

	if sitesPath == "" {
		return config.Config{}, fmt.Errorf("%w: --sites is required", config.ErrInvalidConfig)
	}

	cfg, err := config.WithDefault(sitesPath).Build()
	if err != nil {
		return config.Config{}, err
	}
	return applyFlagOverrides(cfg), nil
}

func applyFlagOverrides(cfg config.Config) config.Config {
	builder := &cfg

	if sitesPath != "" {
		builder = builder.WithSitesPath(sitesPath)
	}
	if outDir != "" {
		builder = builder.WithOutDir(outDir)
	}
	if dbPath != "" {
		builder = builder.WithDBPath(dbPath)
	}
	if since > 0 {
		builder = builder.WithSince(since)
	}
	if concurrency > 0 {
		builder = builder.WithConcurrency(concurrency)
	}
	if userAgent != "" {
		builder = builder.WithUserAgent(userAgent)
	}
	if timeout > 0 {
		builder = builder.WithTimeout(timeout)
	}
	if baseDelay > 0 {
		builder = builder.WithBaseDelay(baseDelay)
	}
	if jitter > 0 {
		builder = builder.WithJitter(jitter)
	}
	if randomSeed != 0 {
		builder = builder.WithRandomSeed(randomSeed)
	}

	result, _ := builder.Build()
	return result
}

func ResetFlags() {
	cfgFile = ""
	sitesPath = ""
	outDir = ""
	dbPath = ""
	since = 0
	concurrency = 0
	userAgent = ""
	timeout = 0
	baseDelay = 0
	jitter = 0
	randomSeed = 0
}

// Test helper functions to set flag values from tests.
func SetConfigFileForTest(path string) {
	cfgFile = path
}

func SetSitesPathForTest(path string) {
	sitesPath = path
}

func SetOutDirForTest(dir string) {
	outDir = dir
}

func SetDBPathForTest(path string) {
	dbPath = path
}

func SetSinceForTest(d time.Duration) {
	since = d
}

func SetConcurrencyForTest(conc int) {
	concurrency = conc
}

func SetUserAgentForTest(agent string) {
	userAgent = agent
}

func SetTimeoutForTest(t time.Duration) {
	timeout = t
}

func SetBaseDelayForTest(delay time.Duration) {
	baseDelay = delay
}

func SetJitterForTest(j time.Duration) {
	jitter = j
}

func SetRandomSeedForTest(seed int64) {
	randomSeed = seed
}
