package revocation

import (
	"time"

	"github.com/hashicorp/golang-lru/arc/v2"
	cache "github.com/patrickmn/go-cache"
	"github.com/scionproto/scion/pkg/metrics/v2"
	"github.com/scionproto/scion/pkg/private/prom"
	"github.com/scionproto/scion/pkg/private/serrors"
	"golang.org/x/sync/singleflight"

	"github.com/fancl20/sigval/pkg/diag"
)

// DefaultParseCacheSize is the default number of parsed tokens kept in a
// Cache.
const DefaultParseCacheSize = 1024

// Cache types used in the lookup metric.
const (
	CacheParse = "parse"
	CacheMemo  = "memo"
)

// Cache lookup results.
const (
	Hit  = "hit"
	Miss = "miss"
)

// Selection results.
const (
	Success     = prom.Success
	NotFound    = "ok_not_found"
	ErrInternal = prom.ErrInternal
)

// Metrics exposes revocation metrics as functions that return counters.
type Metrics struct {
	Selections   func(source, result string) metrics.Counter
	CacheLookups func(typ, result string) metrics.Counter
}

func (m Metrics) selection(source, result string) {
	if m.Selections != nil {
		metrics.CounterInc(m.Selections(source, result))
	}
}

func (m Metrics) lookup(typ string, hit bool) {
	if m.CacheLookups == nil {
		return
	}
	result := Miss
	if hit {
		result = Hit
	}
	metrics.CounterInc(m.CacheLookups(typ, result))
}

// CacheOptions configures a Cache.
type CacheOptions struct {
	// Size is the number of parsed tokens to keep. Zero selects
	// DefaultParseCacheSize.
	Size int
	// DisableMemo disables per certificate memoization in sources.
	DisableMemo bool
	// MemoExpiration is the lifetime of memoized selections. Zero never
	// expires.
	MemoExpiration time.Duration
	Metrics        Metrics
}

type parseKey struct {
	binaryID  string
	subjectID string
	issuerID  string
}

type parsed struct {
	token *Token
	err   error
}

// Cache holds parsed revocation tokens keyed by binary and issuer. It is safe
// for concurrent use and may be shared between validation runs.
type Cache struct {
	opts   CacheOptions
	parsed *arc.ARCCache[parseKey, parsed]
	group  singleflight.Group
}

// NewCache creates a cache.
func NewCache(opts CacheOptions) (*Cache, error) {
	if opts.Size == 0 {
		opts.Size = DefaultParseCacheSize
	}
	c, err := arc.NewARC[parseKey, parsed](opts.Size)
	if err != nil {
		return nil, serrors.Wrap("creating revocation parse cache", err, "size", opts.Size)
	}
	return &Cache{opts: opts, parsed: c}, nil
}

type parseFunc func(bin diag.RevocationBinary, cert, issuer *diag.CertificateToken) (*Token, error)

// token returns the parsed token for the key. Concurrent parses of the same
// key are collapsed into one.
func (c *Cache) token(key parseKey, bin diag.RevocationBinary, cert, issuer *diag.CertificateToken,
	parse parseFunc) (*Token, error) {

	if p, ok := c.parsed.Get(key); ok {
		c.opts.Metrics.lookup(CacheParse, true)
		return p.token, p.err
	}
	c.opts.Metrics.lookup(CacheParse, false)
	v, _, _ := c.group.Do(key.binaryID+"/"+key.subjectID+"/"+key.issuerID, func() (any, error) {
		tok, err := parse(bin, cert, issuer)
		p := parsed{token: tok, err: err}
		c.parsed.Add(key, p)
		return p, nil
	})
	p := v.(parsed)
	return p.token, p.err
}

// memo is a per source selection memo.
type memo struct {
	c       *cache.Cache
	metrics Metrics
}

func (c *Cache) newMemo() *memo {
	if c.opts.DisableMemo {
		return nil
	}
	exp := c.opts.MemoExpiration
	if exp == 0 {
		exp = cache.NoExpiration
	}
	// No janitor, expired items are dropped on access.
	return &memo{c: cache.New(exp, 0), metrics: c.opts.Metrics}
}

func (m *memo) get(key string) (*Token, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.c.Get(key)
	m.metrics.lookup(CacheMemo, ok)
	if !ok {
		return nil, false
	}
	return v.(*Token), true
}

func (m *memo) set(key string, tok *Token) {
	if m == nil {
		return
	}
	m.c.Set(key, tok, cache.DefaultExpiration)
}
