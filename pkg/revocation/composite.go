package revocation

import (
	"fmt"

	"github.com/scionproto/scion/pkg/log"
	"github.com/scionproto/scion/pkg/private/serrors"

	"github.com/fancl20/sigval/pkg/diag"
)

// DefaultOrder is the default origin priority of the selector.
var DefaultOrder = []diag.RevocationOrigin{
	diag.OriginEmbedded,
	diag.OriginExternal,
	diag.OriginOnline,
}

// NamedSource is a source with the name used in logs and metrics.
type NamedSource struct {
	Name   string
	Source Source
}

// Composite delegates to its sources in order and returns the first token
// found. A failing source is logged and skipped.
type Composite struct {
	sources []NamedSource
	logger  log.Logger
	metrics Metrics
}

// Option configures a Composite.
type Option func(*Composite)

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(c *Composite) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(m Metrics) Option {
	return func(c *Composite) {
		c.metrics = m
	}
}

// NewComposite creates a composite over the sources, in priority order.
func NewComposite(sources []NamedSource, opts ...Option) *Composite {
	c := &Composite{sources: sources}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = orRoot(c.logger)
	return c
}

// Revocation returns the result of the first source that found a token. It
// never fails; if no source holds evidence the result is nil.
func (c *Composite) Revocation(cert, issuer *diag.CertificateToken) (*Token, error) {
	for _, s := range c.sources {
		tok, err := try(s, cert, issuer)
		switch {
		case err != nil:
			c.logger.Info("Revocation source failed, trying next source",
				"source", s.Name, "cert", cert.ID(), "err", err)
			c.metrics.selection(s.Name, ErrInternal)
		case tok == nil:
			c.metrics.selection(s.Name, NotFound)
		default:
			c.metrics.selection(s.Name, Success)
			return tok, nil
		}
	}
	return nil, nil
}

// Sources returns the names of the sources in priority order.
func (c *Composite) Sources() []string {
	names := make([]string, 0, len(c.sources))
	for _, s := range c.sources {
		names = append(names, s.Name)
	}
	return names
}

func try(s NamedSource, cert, issuer *diag.CertificateToken) (tok *Token, err error) {
	defer func() {
		if r := recover(); r != nil {
			tok, err = nil, serrors.New("revocation source panicked",
				"source", s.Name, "panic", fmt.Sprint(r))
		}
	}()
	return s.Source.Revocation(cert, issuer)
}

// NewSelector builds the standard selector for the binaries of a snapshot.
// For each origin in order, a CRL source followed by an OCSP source is added
// if the snapshot holds binaries of that origin and kind. A nil order selects
// DefaultOrder.
func NewSelector(binaries []diag.RevocationBinary, c *Cache, order []diag.RevocationOrigin,
	opts ...Option) *Composite {

	if order == nil {
		order = DefaultOrder
	}
	comp := NewComposite(nil, opts...)
	for _, origin := range order {
		var crls, ocsps []diag.RevocationBinary
		for _, b := range binaries {
			if b.Origin != origin {
				continue
			}
			if b.Kind == diag.CRL {
				crls = append(crls, b)
			} else {
				ocsps = append(ocsps, b)
			}
		}
		if len(crls) > 0 {
			comp.sources = append(comp.sources, NamedSource{
				Name:   origin.String() + "_crl",
				Source: NewCRLSource(crls, c, comp.logger),
			})
		}
		if len(ocsps) > 0 {
			comp.sources = append(comp.sources, NamedSource{
				Name:   origin.String() + "_ocsp",
				Source: NewOCSPSource(ocsps, c, comp.logger),
			})
		}
	}
	return comp
}
