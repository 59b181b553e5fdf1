package cmd_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	cmd "github.com/rohmanhakim/linkharvest/internal/cli"
	"github.com/rohmanhakim/linkharvest/internal/config"
)

func TestInitConfigWithError_RequiresSitesPath(t *testing.T) {
	cmd.ResetFlags()

	_, err := cmd.InitConfigWithError()
	if err == nil {
		t.Fatal("expected error when --sites is not set")
	}
	if !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got: %v", err)
	}
}

func TestInitConfigWithError_Defaults(t *testing.T) {
	cmd.ResetFlags()
	cmd.SetSitesPathForTest("sites.yaml")

	cfg, err := cmd.InitConfigWithError()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	defaultCfg, err := config.WithDefault("sites.yaml").Build()
	if err != nil {
		t.Fatalf("should not error: %v", err)
	}

	if cfg.SitesPath() != "sites.yaml" {
		t.Errorf("expected sitesPath sites.yaml, got %s", cfg.SitesPath())
	}
	if cfg.OutDir() != defaultCfg.OutDir() {
		t.Errorf("expected OutDir %s, got %s", defaultCfg.OutDir(), cfg.OutDir())
	}
	if cfg.DBPath() != defaultCfg.DBPath() {
		t.Errorf("expected DBPath %s, got %s", defaultCfg.DBPath(), cfg.DBPath())
	}
	if cfg.Concurrency() != defaultCfg.Concurrency() {
		t.Errorf("expected Concurrency %d, got %d", defaultCfg.Concurrency(), cfg.Concurrency())
	}
	if cfg.UserAgent() != defaultCfg.UserAgent() {
		t.Errorf("expected UserAgent %s, got %s", defaultCfg.UserAgent(), cfg.UserAgent())
	}
}

func TestInitConfigWithError_FlagOverrides(t *testing.T) {
	cmd.ResetFlags()
	cmd.SetSitesPathForTest("sites.yaml")
	cmd.SetOutDirForTest("runs/custom")
	cmd.SetDBPathForTest("custom.db")
	cmd.SetSinceForTest(24 * time.Hour)
	cmd.SetConcurrencyForTest(4)
	cmd.SetUserAgentForTest("custom-agent/1.0")
	cmd.SetTimeoutForTest(30 * time.Second)
	cmd.SetBaseDelayForTest(2 * time.Second)
	cmd.SetJitterForTest(250 * time.Millisecond)
	cmd.SetRandomSeedForTest(42)

	cfg, err := cmd.InitConfigWithError()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.OutDir() != "runs/custom" {
		t.Errorf("expected OutDir runs/custom, got %s", cfg.OutDir())
	}
	if cfg.DBPath() != "custom.db" {
		t.Errorf("expected DBPath custom.db, got %s", cfg.DBPath())
	}
	if cfg.Since() != 24*time.Hour {
		t.Errorf("expected Since 24h, got %v", cfg.Since())
	}
	if cfg.Concurrency() != 4 {
		t.Errorf("expected Concurrency 4, got %d", cfg.Concurrency())
	}
	if cfg.UserAgent() != "custom-agent/1.0" {
		t.Errorf("expected UserAgent custom-agent/1.0, got %s", cfg.UserAgent())
	}
	if cfg.Timeout() != 30*time.Second {
		t.Errorf("expected Timeout 30s, got %v", cfg.Timeout())
	}
	if cfg.BaseDelay() != 2*time.Second {
		t.Errorf("expected BaseDelay 2s, got %v", cfg.BaseDelay())
	}
	if cfg.Jitter() != 250*time.Millisecond {
		t.Errorf("expected Jitter 250ms, got %v", cfg.Jitter())
	}
	if cfg.RandomSeed() != 42 {
		t.Errorf("expected RandomSeed 42, got %d", cfg.RandomSeed())
	}
}

func TestInitConfigWithError_ConfigFile(t *testing.T) {
	cmd.ResetFlags()

	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.json")
	content := `{
		"sitesPath": "from-file.yaml",
		"concurrency": 6,
		"userAgent": "file-agent/1.0"
	}`
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config file: %v", err)
	}

	cmd.SetConfigFileForTest(configFile)

	cfg, err := cmd.InitConfigWithError()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SitesPath() != "from-file.yaml" {
		t.Errorf("expected sitesPath from-file.yaml, got %s", cfg.SitesPath())
	}
	if cfg.Concurrency() != 6 {
		t.Errorf("expected Concurrency 6, got %d", cfg.Concurrency())
	}
	if cfg.UserAgent() != "file-agent/1.0" {
		t.Errorf("expected UserAgent file-agent/1.0, got %s", cfg.UserAgent())
	}
}

func TestInitConfigWithError_ConfigFileFlagOverridesWin(t *testing.T) {
	cmd.ResetFlags()

	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.json")
	content := `{"sitesPath": "from-file.yaml", "concurrency": 6}`
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config file: %v", err)
	}

	cmd.SetConfigFileForTest(configFile)
	cmd.SetConcurrencyForTest(9)

	cfg, err := cmd.InitConfigWithError()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Concurrency() != 9 {
		t.Errorf("expected flag override Concurrency 9, got %d", cfg.Concurrency())
	}
}

func TestInitConfigWithError_NonExistentConfigFile(t *testing.T) {
	cmd.ResetFlags()
	cmd.SetConfigFileForTest("/path/that/does/not/exist/config.json")

	_, err := cmd.InitConfigWithError()
	if err == nil {
		t.Fatal("expected error for non-existent config file")
	}
	if !errors.Is(err, config.ErrFileDoesNotExist) {
		t.Errorf("expected ErrFileDoesNotExist, got: %v", err)
	}
}

func TestResetFlags(t *testing.T) {
	cmd.SetSitesPathForTest("sites.yaml")
	cmd.SetConcurrencyForTest(10)
	cmd.SetOutDirForTest("custom")

	cmd.ResetFlags()

	_, err := cmd.InitConfigWithError()
	if err == nil {
		t.Fatal("expected error after ResetFlags cleared --sites")
	}
	if !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got: %v", err)
	}
}
