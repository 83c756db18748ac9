// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"

	"bud/internal/errors"

	"gopkg.in/ini.v1"
)

type Config struct {
	Core    Core    `ini:"core"`
	Objects Objects `ini:"objects"`
	Diff    Diff    `ini:"diff"`
}

type Core struct {
	Hash      string `ini:"hash"`       // sha1, sha2-256, sha3-256, blake3
	LogLevel  string `ini:"log_level"`  // debug, info, warn, error
	LogFormat string `ini:"log_format"` // console, json
}

type Objects struct {
	Compress        bool `ini:"compress"`
	CompressMinSize int  `ini:"compress_min_size"`
	CompressLevel   int  `ini:"compress_level"` // 1=fastest .. 4=best
	CacheSize       int  `ini:"cache_size"`
}

type Diff struct {
	Context int `ini:"context"` // 0 shows every unchanged line
}

// Default returns the configuration written by init.
func Default() *Config {
	return &Config{
		Core: Core{
			Hash:      "sha1",
			LogLevel:  "warn",
			LogFormat: "console",
		},
		Objects: Objects{
			Compress:        false,
			CompressMinSize: 1024,
			CompressLevel:   2,
			CacheSize:       256,
		},
	}
}

type keyKind int

const (
	kindString keyKind = iota
	kindBool
	kindInt
)

var knownKeys = map[string]keyKind{
	"core.hash":                 kindString,
	"core.log_level":            kindString,
	"core.log_format":           kindString,
	"objects.compress":          kindBool,
	"objects.compress_min_size": kindInt,
	"objects.compress_level":    kindInt,
	"objects.cache_size":        kindInt,
	"diff.context":              kindInt,
}

// Load reads the config at path on top of the defaults. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.IO(path, err)
	}

	file, err := ini.Load(path)
	if err != nil {
		return nil, errors.CorruptData(path, "unreadable config", err)
	}

	if err := file.MapTo(cfg); err != nil {
		return nil, errors.CorruptData(path, "invalid config", err)
	}

	return cfg, nil
}

// Save writes cfg to path, replacing any existing file.
func (c *Config) Save(path string) error {
	file := ini.Empty()
	if err := ini.ReflectFrom(file, c); err != nil {
		return fmt.Errorf("reflecting config: %w", err)
	}
	if err := file.SaveTo(path); err != nil {
		return errors.IO(path, err)
	}
	return nil
}

// Get returns the raw value of a "section.key" entry.
func Get(path, key string) (string, error) {
	section, name, err := splitKey(key)
	if err != nil {
		return "", err
	}

	cfg, err := Load(path)
	if err != nil {
		return "", err
	}

	file := ini.Empty()
	if err := ini.ReflectFrom(file, cfg); err != nil {
		return "", fmt.Errorf("reflecting config: %w", err)
	}

	return file.Section(section).Key(name).String(), nil
}

// Set updates a "section.key" entry. core.hash is fixed once the
// repository exists because every stored digest depends on it.
func Set(path, key, value string) error {
	section, name, err := splitKey(key)
	if err != nil {
		return err
	}
	if key == "core.hash" {
		return errors.ValidationError("core.hash cannot be changed after init", key)
	}

	probe, err := ini.Empty().Section("").NewKey(name, value)
	if err != nil {
		return fmt.Errorf("building key: %w", err)
	}
	switch knownKeys[key] {
	case kindBool:
		if _, err := probe.Bool(); err != nil {
			return errors.ValidationError(fmt.Sprintf("%s expects true or false", key), value)
		}
	case kindInt:
		if n, err := probe.Int(); err != nil || n < 0 {
			return errors.ValidationError(fmt.Sprintf("%s expects a non-negative integer", key), value)
		}
	}

	cfg, err := Load(path)
	if err != nil {
		return err
	}

	file := ini.Empty()
	if err := ini.ReflectFrom(file, cfg); err != nil {
		return fmt.Errorf("reflecting config: %w", err)
	}
	file.Section(section).Key(name).SetValue(value)

	if err := file.SaveTo(path); err != nil {
		return errors.IO(path, err)
	}
	return nil
}

func splitKey(key string) (string, string, error) {
	if _, ok := knownKeys[key]; !ok {
		return "", "", errors.ValidationError(fmt.Sprintf("unknown config key: %s", key), key)
	}
	parts := strings.SplitN(key, ".", 2)
	return parts[0], parts[1], nil
}
