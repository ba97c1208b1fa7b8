// Package certpool deduplicates certificate tokens into entities and keeps
// track of the sources that vouch for each of them.
//
// A Pool is safe for concurrent use. It may be shared by many validation runs
// at once; registrations of byte-identical certificates always converge to a
// single entity whose sources are the union of all registered sources.
package certpool

import (
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/scionproto/scion/pkg/log"

	"github.com/fancl20/sigval/pkg/diag"
)

// Source is a source of certificates.
type Source = diag.CertificateSource

// Entity is the canonical grouping of byte-identical certificate tokens.
type Entity struct {
	// ID identifies the entity. It is derived from the content digest of the
	// certificate.
	ID          string
	Certificate *diag.CertificateToken
	// Sources are the sources that delivered the certificate, ordered by name.
	Sources []Source
}

// Trusted reports whether any source of the entity is trusted.
func (e Entity) Trusted() bool {
	for _, s := range e.Sources {
		if s.Trusted {
			return true
		}
	}
	return false
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger used for registration events.
func WithLogger(logger log.Logger) Option {
	return func(p *Pool) {
		p.logger = logger
	}
}

// Pool is a concurrency safe certificate entity pool.
type Pool struct {
	logger log.Logger

	mu       sync.RWMutex
	entities map[string]*Entity
	// indices map raw key bytes to entity ids.
	bySubject   map[string][]string
	byPublicKey map[string][]string
	bySKI       map[string][]string
}

// New creates an empty pool.
func New(opts ...Option) *Pool {
	p := &Pool{
		entities:    make(map[string]*Entity),
		bySubject:   make(map[string][]string),
		byPublicKey: make(map[string][]string),
		bySKI:       make(map[string][]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = log.Root()
	}
	return p
}

// Register inserts the certificate or merges src into the sources of the
// existing entity. It returns the id of the entity.
func (p *Pool) Register(cert *diag.CertificateToken, src Source) string {
	id := entityID(cert)

	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.entities[id]; ok {
		e.Sources = mergeSource(e.Sources, src)
		return id
	}
	p.entities[id] = &Entity{
		ID:          id,
		Certificate: cert,
		Sources:     []Source{src},
	}
	index(p.bySubject, cert.Subject(), id)
	index(p.byPublicKey, cert.PublicKey(), id)
	if ski := cert.SubjectKeyID(); len(ski) > 0 {
		index(p.bySKI, ski, id)
	}
	p.logger.Debug("Registered certificate entity", "id", id,
		"subject", cert.SubjectName(), "source", src.Name)
	return id
}

// IsTrusted reports whether the certificate is registered with at least one
// trusted source.
func (p *Pool) IsTrusted(cert *diag.CertificateToken) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entities[entityID(cert)]
	return ok && e.Trusted()
}

// Entity returns the entity with the given id.
func (p *Pool) Entity(id string) (Entity, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entities[id]
	if !ok {
		return Entity{}, false
	}
	return e.clone(), true
}

// FindBySubject returns all entities with the given DER encoded subject.
func (p *Pool) FindBySubject(subject []byte) []Entity {
	return p.lookup(p.bySubject, subject)
}

// FindByPublicKey returns all entities with the given DER encoded
// SubjectPublicKeyInfo.
func (p *Pool) FindByPublicKey(spki []byte) []Entity {
	return p.lookup(p.byPublicKey, spki)
}

// FindBySubjectKeyIdentifier returns all entities with the given subject key
// identifier.
func (p *Pool) FindBySubjectKeyIdentifier(ski []byte) []Entity {
	if len(ski) == 0 {
		return []Entity{}
	}
	return p.lookup(p.bySKI, ski)
}

// Issuers returns the registered entities whose key verifies the signature of
// cert. Candidates are taken from the issuer name and the authority key
// identifier.
func (p *Pool) Issuers(cert *diag.CertificateToken) []Entity {
	candidates := p.FindBySubject(cert.Issuer())
	if aki := cert.AuthorityKeyID(); len(aki) > 0 {
		for _, e := range p.FindBySubjectKeyIdentifier(aki) {
			if !slices.ContainsFunc(candidates, func(o Entity) bool { return o.ID == e.ID }) {
				candidates = append(candidates, e)
			}
		}
	}
	issuers := []Entity{}
	for _, e := range candidates {
		if cert.IsSignedBy(e.Certificate) {
			issuers = append(issuers, e)
		}
	}
	return issuers
}

// Len returns the number of entities.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entities)
}

// Entities returns all entities ordered by id.
func (p *Pool) Entities() []Entity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entities := make([]Entity, 0, len(p.entities))
	for _, e := range p.entities {
		entities = append(entities, e.clone())
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })
	return entities
}

func (p *Pool) lookup(idx map[string][]string, key []byte) []Entity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := idx[string(key)]
	entities := make([]Entity, 0, len(ids))
	for _, id := range ids {
		entities = append(entities, p.entities[id].clone())
	}
	return entities
}

func (e *Entity) clone() Entity {
	return Entity{
		ID:          e.ID,
		Certificate: e.Certificate,
		Sources:     slices.Clone(e.Sources),
	}
}

func entityID(cert *diag.CertificateToken) string {
	return cert.ID()
}

func index(idx map[string][]string, key []byte, id string) {
	k := string(key)
	idx[k] = append(idx[k], id)
}

// mergeSource adds src to the sorted source list. A source that is already
// present keeps its kind and becomes trusted if src is trusted.
func mergeSource(sources []Source, src Source) []Source {
	i, found := sort.Find(len(sources), func(i int) int {
		return strings.Compare(src.Name, sources[i].Name)
	})
	if found {
		sources[i].Trusted = sources[i].Trusted || src.Trusted
		return sources
	}
	return slices.Insert(sources, i, src)
}
