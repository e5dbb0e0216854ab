// Package config loads tempuscached's settings: YAML defaults overridden
// by environment variables, the same two-layer approach
// Generativebots-ocx-backend-go-svc's internal/config uses for its own
// service configuration.
package config

import (
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Settings holds every knob spec.md §6 names as "consumed", plus the
// handful needed to stand the host cache up.
type Settings struct {
	// LRUCrawlerSleep is the pause between item batches; 0 means
	// yield-only (briefly cycle the crawler mutex instead of sleeping).
	LRUCrawlerSleep time.Duration `yaml:"lru_crawler_sleep" envconfig:"LRU_CRAWLER_SLEEP"`
	// CrawlsPersleep is how many items the scanner visits between sleeps.
	CrawlsPersleep int `yaml:"crawls_persleep" envconfig:"CRAWLS_PERSLEEP"`
	// Verbose is the log verbosity: 0=warn, 1=info, 2=debug.
	Verbose int `yaml:"verbose" envconfig:"VERBOSE"`

	// ListenAddr is the text-protocol listener address. The number of
	// slab classes is not a setting here: it's a compile-time layout
	// constant (slab.MaxClasses) because the wire grammar's sub-LRU bit
	// packing (internal/slab.ClassBits/TempLRU/HotLRU/...) is derived
	// from it directly — changing it at runtime would silently change
	// which bits the crawl command grammar expects.
	ListenAddr string `yaml:"listen_addr" envconfig:"LISTEN_ADDR"`

	// MetricsAddr serves /metrics for Prometheus scraping, separate from
	// the text-protocol listener.
	MetricsAddr string `yaml:"metrics_addr" envconfig:"METRICS_ADDR"`

	// AutoexpireInterval is how often the host process arms an AUTOEXPIRE
	// crawl on its own, independent of any client-issued lru_crawler
	// command. 0 disables the background trigger.
	AutoexpireInterval time.Duration `yaml:"autoexpire_interval" envconfig:"AUTOEXPIRE_INTERVAL"`
}

// Default returns the settings tempuscached starts with absent any file
// or environment overrides.
func Default() Settings {
	return Settings{
		LRUCrawlerSleep:    0,
		CrawlsPersleep:     1000,
		Verbose:            0,
		ListenAddr:         ":11311",
		MetricsAddr:        ":9111",
		AutoexpireInterval: 60 * time.Second,
	}
}

// Load reads an optional YAML file over the defaults, then applies
// TEMPUSCACHED_-prefixed environment overrides on top. path=="" skips the
// file layer entirely.
func Load(path string) (Settings, error) {
	s := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return s, err
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return s, err
		}
	}

	if err := envconfig.Process("tempuscached", &s); err != nil {
		return s, err
	}
	return s, nil
}
