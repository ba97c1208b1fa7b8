// Package validation runs the validation of diagnostic snapshots.
//
// A Context holds everything that is shared between validation runs: the
// policy, the certificate entity pool and the revocation parse cache. It is
// built once and passed to every run.
package validation

import (
	"context"
	"crypto/x509"
	"runtime"

	"github.com/scionproto/scion/pkg/log"
	"github.com/scionproto/scion/pkg/private/serrors"

	"github.com/fancl20/sigval/pkg/bbb"
	"github.com/fancl20/sigval/pkg/certpool"
	poolbbolt "github.com/fancl20/sigval/pkg/certpool/impl/bbolt"
	"github.com/fancl20/sigval/pkg/diag"
	"github.com/fancl20/sigval/pkg/policy"
	"github.com/fancl20/sigval/pkg/revocation"
	"github.com/fancl20/sigval/pkg/validation/config"
	"github.com/fancl20/sigval/pkg/validation/metrics"
)

// DefaultKeyUsage are the key usages a signing certificate must permit one
// of.
const DefaultKeyUsage = x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment

// Context is the immutable engine context shared by validation runs.
type Context struct {
	policy      *policy.Policy
	pool        *certpool.Pool
	db          certpool.DB
	cache       *revocation.Cache
	order       []diag.RevocationOrigin
	logger      log.Logger
	metrics     metrics.Metrics
	keyUsage    x509.KeyUsage
	allow       []bbb.SubIndication
	parallelism int
}

// Option configures a Context.
type Option func(*Context)

// WithPolicy overrides the configured policy.
func WithPolicy(p *policy.Policy) Option {
	return func(c *Context) {
		c.policy = p
	}
}

// WithPool shares an existing pool.
func WithPool(p *certpool.Pool) Option {
	return func(c *Context) {
		c.pool = p
	}
}

// WithLogger sets the logger of the shared components. Runs log to the
// logger of their context.
func WithLogger(logger log.Logger) Option {
	return func(c *Context) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(m metrics.Metrics) Option {
	return func(c *Context) {
		c.metrics = m
	}
}

// WithKeyUsage sets the key usages a signing certificate must permit one of.
func WithKeyUsage(ku x509.KeyUsage) Option {
	return func(c *Context) {
		c.keyUsage = ku
	}
}

// WithTLevelAllow sets the sub-indications that qualify an INDETERMINATE
// timestamp for the T-level.
func WithTLevelAllow(allow ...bbb.SubIndication) Option {
	return func(c *Context) {
		c.allow = allow
	}
}

// WithParallelism bounds the number of snapshots ValidateAll validates
// concurrently.
func WithParallelism(n int) Option {
	return func(c *Context) {
		c.parallelism = n
	}
}

// NewContext creates the engine context. A nil cfg uses the default
// configuration. If a pool database is configured, the pool is loaded from it
// and Close must be called to persist it.
func NewContext(ctx context.Context, cfg *config.Config, opts ...Option) (*Context, error) {
	if cfg == nil {
		cfg = &config.Config{}
		cfg.InitDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Context{
		keyUsage:    DefaultKeyUsage,
		allow:       bbb.PastValidationSubIndications,
		parallelism: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.Root()
	}
	if c.policy == nil {
		p, err := cfg.Policy.Load()
		if err != nil {
			return nil, serrors.Wrap("loading policy", err)
		}
		c.policy = p
	}
	order, err := cfg.Revocation.Origins()
	if err != nil {
		return nil, err
	}
	c.order = order

	cacheOpts := cfg.Cache.Options()
	cacheOpts.Metrics = c.metrics.Revocation
	if c.cache, err = revocation.NewCache(cacheOpts); err != nil {
		return nil, err
	}

	if c.pool == nil {
		c.pool = certpool.New(certpool.WithLogger(c.logger))
	}
	if cfg.Pool.DB != "" {
		db, err := poolbbolt.New(cfg.Pool.DB, nil)
		if err != nil {
			return nil, serrors.Wrap("opening pool database", err, "path", cfg.Pool.DB)
		}
		if err := c.pool.Load(ctx, db, certpool.Query{TrustedOnly: cfg.Pool.TrustedOnly}); err != nil {
			_ = db.Close()
			return nil, err
		}
		c.db = db
		c.logger.Info("Loaded certificate pool", "path", cfg.Pool.DB, "entities", c.pool.Len())
	}
	return c, nil
}

// Policy returns the policy.
func (c *Context) Policy() *policy.Policy {
	return c.policy
}

// Pool returns the shared certificate entity pool.
func (c *Context) Pool() *certpool.Pool {
	return c.pool
}

// Close saves the pool to the pool database, if any, and closes it.
func (c *Context) Close(ctx context.Context) error {
	if c.db == nil {
		return nil
	}
	n, err := c.pool.Save(ctx, c.db)
	if err != nil {
		_ = c.db.Close()
		return serrors.Wrap("saving certificate pool", err)
	}
	c.logger.Info("Saved certificate pool", "inserted", n)
	return c.db.Close()
}
