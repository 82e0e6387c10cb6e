package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v2"
)

// fileConfig mirrors the command line flags in a TOML file. Flags that are
// set explicitly, on the command line or through DOCSYNC_* variables, win
// over file values, and file values win over flag defaults.
type fileConfig struct {
	Data   string `toml:"data"`
	Source string `toml:"source"`
	Index  string `toml:"index"`

	Embedder struct {
		Provider  string `toml:"provider"`
		Host      string `toml:"host"`
		Model     string `toml:"model"`
		APIKey    string `toml:"api_key"`
		BatchSize int    `toml:"batch_size"`
		Dimension int    `toml:"dimension"`
	} `toml:"embedder"`

	Ingest struct {
		BatchSize      int    `toml:"batch_size"`
		Concurrency    int    `toml:"concurrency"`
		MaxChunkLength int    `toml:"max_chunk_length"`
		Overlap        int    `toml:"overlap"`
		Splitter       string `toml:"splitter"`
		StaleStrategy  string `toml:"stale_strategy"`
		CallTimeout    string `toml:"call_timeout"`
		MaxAttempts    int    `toml:"max_attempts"`
		RetryDelay     string `toml:"retry_delay"`
		Debounce       string `toml:"debounce"`
	} `toml:"ingest"`

	Postgres struct {
		URL   string `toml:"url"`
		Table string `toml:"table"`
	} `toml:"postgres"`

	Milvus struct {
		Address    string `toml:"address"`
		Database   string `toml:"database"`
		Username   string `toml:"username"`
		Password   string `toml:"password"`
		Collection string `toml:"collection"`
		Timeout    string `toml:"timeout"`
	} `toml:"milvus"`
}

func loadFileConfig(path string) (*fileConfig, error) {
	cfg := &fileConfig{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// settings resolves each option from the flags and the config file.
type settings struct {
	c    *cli.Context
	file *fileConfig
}

func newSettings(c *cli.Context) (*settings, error) {
	file, err := loadFileConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	return &settings{c: c, file: file}, nil
}

func (s *settings) string(flag, fileValue string) string {
	if s.c.IsSet(flag) || fileValue == "" {
		return s.c.String(flag)
	}
	return fileValue
}

func (s *settings) int(flag string, fileValue int) int {
	if s.c.IsSet(flag) || fileValue == 0 {
		return s.c.Int(flag)
	}
	return fileValue
}

func (s *settings) duration(flag, fileValue string) (time.Duration, error) {
	if s.c.IsSet(flag) || fileValue == "" {
		return s.c.Duration(flag), nil
	}
	d, err := time.ParseDuration(fileValue)
	if err != nil {
		return 0, fmt.Errorf("config %s: %w", flag, err)
	}
	return d, nil
}
