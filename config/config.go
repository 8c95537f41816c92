// Package config loads the harness's on-disk connection configuration,
// feeding engine.Options for cmd/ircengine. Grounded on the teacher's
// config.go (the field list: addr/nick/user/real/password, and the
// ParseConfig/LoadConfigFile pair), but read with
// git.sr.ht/~emersion/go-scfg instead of the filtered snapshot's
// gopkg.in/yaml.v2, because scfg is the dependency the teacher's own
// go.mod actually commits to (see DESIGN.md).
package config

import (
	"errors"
	"fmt"
	"os"

	"git.sr.ht/~emersion/go-scfg"
)

// Config is the set of fields the reference harness needs to dial a
// server and register, per spec.md §6's registration message and
// SPEC_FULL.md §14.
type Config struct {
	Addr     string
	Nick     string
	User     string
	Real     string
	Password string

	// Debug is set by the "debug" directive, matching the teacher's
	// cmd/senpai "-debug" flag. cmd/ircengine does not read it.
	Debug bool
}

// ParseConfig reads an scfg document (the format senpai's upstream
// standardized on) into a Config, applying the teacher's nick/realname
// fallbacks (config.go's ParseConfig).
func ParseConfig(block scfg.Block) (Config, error) {
	var cfg Config

	for _, dir := range block {
		switch dir.Name {
		case "addr":
			if len(dir.Params) != 1 {
				return cfg, fmt.Errorf("addr: expected 1 parameter, got %d", len(dir.Params))
			}
			cfg.Addr = dir.Params[0]
		case "nick":
			if len(dir.Params) != 1 {
				return cfg, fmt.Errorf("nick: expected 1 parameter, got %d", len(dir.Params))
			}
			cfg.Nick = dir.Params[0]
		case "user":
			if len(dir.Params) != 1 {
				return cfg, fmt.Errorf("user: expected 1 parameter, got %d", len(dir.Params))
			}
			cfg.User = dir.Params[0]
		case "real":
			if len(dir.Params) != 1 {
				return cfg, fmt.Errorf("real: expected 1 parameter, got %d", len(dir.Params))
			}
			cfg.Real = dir.Params[0]
		case "password":
			if len(dir.Params) != 1 {
				return cfg, fmt.Errorf("password: expected 1 parameter, got %d", len(dir.Params))
			}
			cfg.Password = dir.Params[0]
		case "debug":
			cfg.Debug = true
		}
	}

	if cfg.Addr == "" {
		return cfg, errors.New("addr is required")
	}
	if cfg.Nick == "" {
		return cfg, errors.New("nick is required")
	}
	if cfg.User == "" {
		cfg.User = cfg.Nick
	}
	if cfg.Real == "" {
		cfg.Real = cfg.Nick
	}

	return cfg, nil
}

// LoadFile parses the scfg document at filename into a Config.
func LoadFile(filename string) (Config, error) {
	f, err := os.Open(filename)
	if err != nil {
		return Config{}, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	block, err := scfg.Load(f)
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg, err := ParseConfig(block)
	if err != nil {
		return cfg, fmt.Errorf("invalid content in config file: %w", err)
	}
	return cfg, nil
}
