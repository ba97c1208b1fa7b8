// Package config contains the configuration of the validation engine.
package config

import (
	"io"
	"time"

	"github.com/scionproto/scion/pkg/private/serrors"
	"github.com/scionproto/scion/pkg/private/util"
	"github.com/scionproto/scion/private/config"

	"github.com/fancl20/sigval/pkg/diag"
	"github.com/fancl20/sigval/pkg/policy"
	"github.com/fancl20/sigval/pkg/revocation"
)

const defaultExpiration = time.Minute

// Config is the validation engine configuration.
type Config struct {
	Cache      Cache      `toml:"cache"`
	Policy     Policy     `toml:"policy"`
	Revocation Revocation `toml:"revocation"`
	Pool       Pool       `toml:"pool"`
}

func (cfg *Config) InitDefaults() {
	config.InitAll(
		&cfg.Cache,
		&cfg.Policy,
		&cfg.Revocation,
		&cfg.Pool,
	)
}

func (cfg *Config) Validate() error {
	return config.ValidateAll(
		&cfg.Cache,
		&cfg.Policy,
		&cfg.Revocation,
		&cfg.Pool,
	)
}

func (cfg *Config) Sample(dst io.Writer, path config.Path, ctx config.CtxMap) {
	config.WriteSample(dst, path, ctx,
		&cfg.Cache,
		&cfg.Policy,
		&cfg.Revocation,
		&cfg.Pool,
	)
}

func (cfg *Config) ConfigName() string {
	return "validation"
}

// Load loads and validates the configuration from a TOML file. Unset values
// are initialized to their defaults.
func Load(file string) (*Config, error) {
	cfg := &Config{}
	if err := config.LoadFile(file, cfg); err != nil {
		return nil, serrors.Wrap("Unable to load config", err, "file", file)
	}
	cfg.InitDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Cache configures the revocation caches.
type Cache struct {
	config.NoValidator
	// Disable disables memoization of revocation selections.
	Disable    bool         `toml:"disable,omitempty"`
	Expiration util.DurWrap `toml:"expiration,omitempty"`
	// ParseSize is the number of parsed revocation tokens kept.
	ParseSize int `toml:"parse_size,omitempty"`
}

// Options returns the revocation cache options.
func (cfg *Cache) Options() revocation.CacheOptions {
	return revocation.CacheOptions{
		Size:           cfg.ParseSize,
		DisableMemo:    cfg.Disable,
		MemoExpiration: cfg.Expiration.Duration,
	}
}

func (cfg *Cache) InitDefaults() {
	if cfg.Expiration.Duration == 0 {
		cfg.Expiration.Duration = defaultExpiration
	}
	if cfg.ParseSize == 0 {
		cfg.ParseSize = revocation.DefaultParseCacheSize
	}
}

func (cfg *Cache) Sample(dst io.Writer, path config.Path, _ config.CtxMap) {
	config.WriteString(dst, `
# Disable memoization of revocation selections.
disable = false

# Maximum lifetime of a memoized revocation selection.
expiration = "1m"

# Number of parsed revocation tokens kept.
parse_size = 1024
`)
}

func (cfg *Cache) ConfigName() string {
	return "cache"
}

// Policy configures the validation policy.
type Policy struct {
	// File is the policy file. If empty, the built-in policy is used.
	File string `toml:"file,omitempty"`
	// Format is the policy file format, derived from the file extension if
	// empty.
	Format string `toml:"format,omitempty"`
}

func (cfg *Policy) InitDefaults() {}

func (cfg *Policy) Validate() error {
	switch policy.Format(cfg.Format) {
	case "", policy.FormatTOML, policy.FormatYAML:
		return nil
	default:
		return serrors.New("unknown policy format", "format", cfg.Format)
	}
}

// Load loads the configured policy.
func (cfg *Policy) Load() (*policy.Policy, error) {
	if cfg.File == "" {
		return policy.Default(), nil
	}
	return policy.LoadFile(cfg.File, policy.Format(cfg.Format))
}

func (cfg *Policy) Sample(dst io.Writer, path config.Path, _ config.CtxMap) {
	config.WriteString(dst, `
# The policy file. If empty, the built-in policy is used. (default "")
file = ""

# The policy file format, either "toml" or "yaml". If empty, the format is
# derived from the file extension. (default "")
format = ""
`)
}

func (cfg *Policy) ConfigName() string {
	return "policy"
}

// Revocation configures revocation evidence selection.
type Revocation struct {
	// Order is the priority order of revocation data origins.
	Order []string `toml:"order,omitempty"`
}

func (cfg *Revocation) InitDefaults() {
	if len(cfg.Order) == 0 {
		for _, o := range revocation.DefaultOrder {
			cfg.Order = append(cfg.Order, o.String())
		}
	}
}

func (cfg *Revocation) Validate() error {
	_, err := cfg.Origins()
	return err
}

// Origins returns the configured order as revocation origins.
func (cfg *Revocation) Origins() ([]diag.RevocationOrigin, error) {
	origins := make([]diag.RevocationOrigin, 0, len(cfg.Order))
	seen := make(map[diag.RevocationOrigin]struct{}, len(cfg.Order))
	for _, name := range cfg.Order {
		o, err := parseOrigin(name)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[o]; ok {
			return nil, serrors.New("duplicate revocation origin", "origin", name)
		}
		seen[o] = struct{}{}
		origins = append(origins, o)
	}
	return origins, nil
}

func parseOrigin(name string) (diag.RevocationOrigin, error) {
	for _, o := range []diag.RevocationOrigin{
		diag.OriginEmbedded, diag.OriginExternal, diag.OriginOnline,
	} {
		if o.String() == name {
			return o, nil
		}
	}
	return 0, serrors.New("unknown revocation origin", "origin", name)
}

func (cfg *Revocation) Sample(dst io.Writer, path config.Path, _ config.CtxMap) {
	config.WriteString(dst, `
# The priority order of revocation data origins. Revocation evidence of an
# earlier origin wins over evidence of a later one.
# (default ["embedded", "external", "online"])
order = ["embedded", "external", "online"]
`)
}

func (cfg *Revocation) ConfigName() string {
	return "revocation"
}

// Pool configures the certificate entity pool.
type Pool struct {
	config.NoDefaulter
	config.NoValidator
	// DB is the path of the database the pool is loaded from and saved to.
	// If empty, the pool is kept in memory only.
	DB string `toml:"db,omitempty"`
	// TrustedOnly restricts loading to entities with a trusted source.
	TrustedOnly bool `toml:"trusted_only,omitempty"`
}

func (cfg *Pool) Sample(dst io.Writer, path config.Path, _ config.CtxMap) {
	config.WriteString(dst, `
# The database the certificate entity pool is loaded from and saved to. If
# empty, the pool is kept in memory only. (default "")
db = ""

# Only load entities vouched for by a trusted source. (default false)
trusted_only = false
`)
}

func (cfg *Pool) ConfigName() string {
	return "pool"
}
