// Package config reads settings from a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"annotate/internal/engine"
	"annotate/internal/persist"
	"annotate/internal/source"
	"annotate/internal/storage"
)

// Config holds every runtime setting. Variables already set in the
// environment win over the .env file.
type Config struct {
	DataDir      string
	DBDriver     string // sqlite | postgres | mysql | mongo
	DBDSN        string
	MongoDB      string
	Addr         string
	BaseURL      string
	UserID       string
	PublicLinks  bool
	SourceTiers  []source.Tier
	SaveDebounce time.Duration
	SaveInterval time.Duration
	LinkTTL      time.Duration
	RenderMode   engine.RenderMode
	PurgeCron    string
}

// Load reads .env from the working directory when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: .env: %v", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the environment alone.
func FromEnv() (*Config, error) {
	home, _ := os.UserHomeDir()
	cfg := &Config{
		DataDir:     env("ANNOTATE_DATA_DIR", filepath.Join(home, ".annotate")),
		DBDriver:    strings.ToLower(env("ANNOTATE_DB_DRIVER", "sqlite")),
		DBDSN:       os.Getenv("ANNOTATE_DB_DSN"),
		MongoDB:     os.Getenv("ANNOTATE_MONGO_DB"),
		Addr:        env("ANNOTATE_ADDR", ":8080"),
		BaseURL:     os.Getenv("ANNOTATE_BASE_URL"),
		UserID:      env("ANNOTATE_USER", "local"),
		PurgeCron:   os.Getenv("ANNOTATE_LINK_PURGE"),
		SourceTiers: source.DefaultTiers,
	}

	var err error
	if cfg.PublicLinks, err = envBool("ANNOTATE_PUBLIC_LINKS", false); err != nil {
		return nil, err
	}
	if cfg.SaveDebounce, err = envDuration("ANNOTATE_SAVE_DEBOUNCE", persist.DefaultDebounce); err != nil {
		return nil, err
	}
	if cfg.SaveInterval, err = envDuration("ANNOTATE_SAVE_INTERVAL", persist.DefaultInterval); err != nil {
		return nil, err
	}
	if cfg.LinkTTL, err = envDuration("ANNOTATE_LINK_TTL", time.Hour); err != nil {
		return nil, err
	}
	if v := os.Getenv("ANNOTATE_SOURCE_TIERS"); v != "" {
		if cfg.SourceTiers, err = source.ParseTiers(v); err != nil {
			return nil, fmt.Errorf("ANNOTATE_SOURCE_TIERS: %w", err)
		}
	}
	if cfg.RenderMode, err = engine.ParseRenderMode(os.Getenv("ANNOTATE_RENDER_MODE")); err != nil {
		return nil, fmt.Errorf("ANNOTATE_RENDER_MODE: %w", err)
	}
	if cfg.DBDriver != "mongo" {
		if _, err := storage.ParseDialect(cfg.DBDriver); err != nil {
			return nil, fmt.Errorf("ANNOTATE_DB_DRIVER: %w", err)
		}
	} else if cfg.DBDSN == "" {
		return nil, errors.New("ANNOTATE_DB_DSN is required for the mongo driver")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost" + cfg.Addr
		if !strings.HasPrefix(cfg.Addr, ":") {
			cfg.BaseURL = "http://" + cfg.Addr
		}
	}
	return cfg, nil
}

// SQLitePath is the metadata database used when no DSN is configured.
func (c *Config) SQLitePath() string {
	if c.DBDSN != "" {
		return c.DBDSN
	}
	return filepath.Join(c.DataDir, "annotate.db")
}

// ObjectsDir is the root of the filesystem bucket.
func (c *Config) ObjectsDir() string {
	return filepath.Join(c.DataDir, "objects")
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
