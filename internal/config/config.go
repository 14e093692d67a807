// Package config loads service settings: built-in defaults, then an
// optional TOML file, then AMANAT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// FileEnv names the variable holding the TOML config path.
const FileEnv = "AMANAT_CONFIG"

type Config struct {
	HTTPAddr string `toml:"http_addr" env:"HTTP_ADDR"`
	GRPCAddr string `toml:"grpc_addr" env:"GRPC_ADDR"`
	// PostgresDSN selects the Postgres store; empty keeps state in memory.
	PostgresDSN string `toml:"pg_dsn" env:"PG_DSN"`

	Auth   Auth   `toml:"auth" envPrefix:"AUTH_"`
	Escrow Escrow `toml:"escrow" envPrefix:"ESCROW_"`
	Rate   Rate   `toml:"rate" envPrefix:"RATE_"`
}

type Auth struct {
	Secret    string   `toml:"secret" env:"SECRET"`
	Issuer    string   `toml:"issuer" env:"ISSUER"`
	TokenTTL  Duration `toml:"token_ttl" env:"TOKEN_TTL"`
	DevTokens bool     `toml:"dev_tokens" env:"DEV_TOKENS"`
}

type Escrow struct {
	Administrators []string `toml:"administrators" env:"ADMINISTRATORS" envSeparator:","`
	GracePeriod    Duration `toml:"grace_period" env:"GRACE_PERIOD"`
}

type Rate struct {
	RPS   float64 `toml:"rps" env:"RPS"`
	Burst int     `toml:"burst" env:"BURST"`
}

// Duration accepts Go duration strings ("336h") in TOML and env.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		HTTPAddr: ":8080",
		GRPCAddr: ":9090",
		Auth: Auth{
			Issuer:   "amanat",
			TokenTTL: Duration{time.Hour},
		},
		Escrow: Escrow{GracePeriod: Duration{14 * 24 * time.Hour}},
		Rate:   Rate{RPS: 50, Burst: 100},
	}
}

// Load resolves the configuration. The TOML file named by AMANAT_CONFIG is
// optional; a named but unreadable file is an error.
func Load() (Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv(FileEnv)); path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "AMANAT_"}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile overlays the TOML file at path onto cfg.
func LoadFile(path string, cfg *Config) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config %s: unknown keys %v", path, undecoded)
	}
	return nil
}

// Validate reports settings the service cannot start with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	if c.Escrow.GracePeriod.Duration < 0 {
		errs = append(errs, errors.New("escrow.grace_period must not be negative"))
	}
	if c.Rate.RPS < 0 || c.Rate.Burst < 0 {
		errs = append(errs, errors.New("rate limits must not be negative"))
	}
	if c.Auth.TokenTTL.Duration <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	return errors.Join(errs...)
}

// Administrators returns the trimmed, non-empty administrator identities.
func (c Config) Administrators() []string {
	out := make([]string, 0, len(c.Escrow.Administrators))
	for _, a := range c.Escrow.Administrators {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
