package siteconfig

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

/*
Responsibilities
- Parse the --sites YAML file into one SiteConfig per configured site.
- Nothing here decides crawl behavior; it is a thin DTO layer the runner
  dispatches on by Kind.

Grounded on original_source/src/runner.py:_load_sites (yaml.safe_load of a
top-level "sites:" list); this repo's loader is intentionally thin since
spec.md names the YAML site-config loader as an out-of-scope collaborator.
*/

type Kind string

const (
	KindWordPress Kind = "wordpress"
	KindRSS       Kind = "rss"
	KindSitemap   Kind = "sitemap"
	KindCrawl     Kind = "crawl"
)

// SiteConfig is the union of every adapter-specific cfg key named in
// spec §3; a given site only populates the keys its Kind uses.
type SiteConfig struct {
	ID   string `yaml:"id" json:"id"`
	Kind Kind   `yaml:"kind" json:"kind"`

	Base    string `yaml:"base,omitempty" json:"base,omitempty"`
	Feed    string `yaml:"feed,omitempty" json:"feed,omitempty"`
	Sitemap string `yaml:"sitemap,omitempty" json:"sitemap,omitempty"`

	RateLimitRPS      float64           `yaml:"rate_limit_rps,omitempty" json:"rate_limit_rps,omitempty"`
	MaxDepth          int               `yaml:"max_depth,omitempty" json:"max_depth,omitempty"`
	ScopeHost         string            `yaml:"scope_host,omitempty" json:"scope_host,omitempty"`
	IncludePaths      []string          `yaml:"include_paths,omitempty" json:"include_paths,omitempty"`
	ExcludePatterns   []string          `yaml:"exclude_patterns,omitempty" json:"exclude_patterns,omitempty"`
	UserAgent         string            `yaml:"user_agent,omitempty" json:"user_agent,omitempty"`
	Headers           map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	RecrawlTTLSeconds int64             `yaml:"recrawl_ttl_seconds,omitempty" json:"recrawl_ttl_seconds,omitempty"`
	JSRender          bool              `yaml:"js_render,omitempty" json:"js_render,omitempty"`
	WaitSelector      string            `yaml:"wait_selector,omitempty" json:"wait_selector,omitempty"`
	MaxRenderedPages  int               `yaml:"max_rendered_pages,omitempty" json:"max_rendered_pages,omitempty"`
	MaxPages          int               `yaml:"max_pages,omitempty" json:"max_pages,omitempty"`
}

type sitesFile struct {
	Sites []SiteConfig `yaml:"sites"`
}

// Load reads and validates the --sites YAML file.
func Load(path string) ([]SiteConfig, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sites file %s: %w", path, err)
	}

	var parsed sitesFile
	if err := yaml.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse sites file %s: %w", path, err)
	}

	if len(parsed.Sites) == 0 {
		return nil, fmt.Errorf("sites file %s: no sites configured", path)
	}

	seen := make(map[string]struct{}, len(parsed.Sites))
	for i, site := range parsed.Sites {
		if site.ID == "" {
			return nil, fmt.Errorf("site at index %d: id is required", i)
		}
		if _, dup := seen[site.ID]; dup {
			return nil, fmt.Errorf("site %q: duplicate id", site.ID)
		}
		seen[site.ID] = struct{}{}

		switch site.Kind {
		case KindWordPress, KindRSS, KindSitemap, KindCrawl:
		default:
			return nil, fmt.Errorf("site %q: unknown kind %q", site.ID, site.Kind)
		}
	}

	return parsed.Sites, nil
}

// CfgJSON renders a site's adapter-specific keys for the sources.cfg_json
// audit column (spec's SUPPLEMENTED FEATURES #1).
func (s SiteConfig) CfgJSON() (string, error) {
	body, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (s SiteConfig) BasePtr() *string {
	if s.Base == "" {
		return nil
	}
	base := s.Base
	return &base
}

// EffectiveRateLimitRPS applies the original implementation's per-adapter
// defaults (spec's SUPPLEMENTED FEATURES #5) when a site omits the key.
func (s SiteConfig) EffectiveRateLimitRPS() float64 {
	if s.RateLimitRPS > 0 {
		return s.RateLimitRPS
	}
	if s.Kind == KindCrawl {
		return 0.5
	}
	return 1.0
}
