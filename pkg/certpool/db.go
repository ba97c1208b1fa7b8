package certpool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/scionproto/scion/pkg/scrypto/cppki"

	"github.com/fancl20/sigval/pkg/diag"
)

// StoredEntity is the persisted form of an entity.
type StoredEntity struct {
	Certificate *diag.CertificateToken
	Sources     []Source
}

// Query identifies a set of entities that need to be looked up.
type Query struct {
	// SubjectKeyID identifies the subject key the certificate must
	// authenticate. Empty matches all keys.
	SubjectKeyID []byte
	// Validity is the validity period the certificate must cover. A
	// certificate c fulfills the validity requirement if
	// c.not_before <= Validity.not_before and c.not_after >= Validity.not_after.
	Validity cppki.Validity
	// TrustedOnly restricts the result to entities with a trusted source.
	TrustedOnly bool
}

// Matches reports whether the stored entity fulfills the query.
func (q Query) Matches(e StoredEntity) bool {
	cert := e.Certificate.Certificate()
	if len(q.SubjectKeyID) > 0 && string(cert.SubjectKeyId) != string(q.SubjectKeyID) {
		return false
	}
	if !q.Validity.NotBefore.IsZero() && cert.NotBefore.After(q.Validity.NotBefore) {
		return false
	}
	if !q.Validity.NotAfter.IsZero() && cert.NotAfter.Before(q.Validity.NotAfter) {
		return false
	}
	if q.TrustedOnly {
		return Entity{Sources: e.Sources}.Trusted()
	}
	return true
}

// MarshalJSON marshals the query for well formated log output.
func (q Query) MarshalJSON() ([]byte, error) {
	j := struct {
		SubjectKeyID string         `json:"subject_key_id"`
		Validity     cppki.Validity `json:"validity"`
		TrustedOnly  bool           `json:"trusted_only"`
	}{
		SubjectKeyID: fmt.Sprintf("%x", q.SubjectKeyID),
		Validity:     q.Validity,
		TrustedOnly:  q.TrustedOnly,
	}
	return json.Marshal(j)
}

// DB is the database interface for persisted certificate entities.
type DB interface {
	// Entities looks up all entities that match the query.
	Entities(context.Context, Query) ([]StoredEntity, error)
	// InsertEntity inserts the given entity. Sources of an already stored
	// entity are merged. Returns true if the entity was not yet in the DB.
	InsertEntity(context.Context, StoredEntity) (bool, error)

	Close() error
}

// Save writes all entities of the pool to db. It returns the number of
// entities that were not yet stored.
func (p *Pool) Save(ctx context.Context, db DB) (int, error) {
	var inserted int
	for _, e := range p.Entities() {
		in, err := db.InsertEntity(ctx, StoredEntity{
			Certificate: e.Certificate,
			Sources:     e.Sources,
		})
		if err != nil {
			return inserted, fmt.Errorf("saving entity %s: %w", e.ID, err)
		}
		if in {
			inserted++
		}
	}
	return inserted, nil
}

// Load registers all entities stored in db that match the query.
func (p *Pool) Load(ctx context.Context, db DB, q Query) error {
	entities, err := db.Entities(ctx, q)
	if err != nil {
		return fmt.Errorf("loading entities: %w", err)
	}
	for _, e := range entities {
		for _, src := range e.Sources {
			p.Register(e.Certificate, src)
		}
	}
	return nil
}

// MergeSources merges the sources of b into a, following the same rules as
// Pool.Register. It is meant for DB implementations.
func MergeSources(a []Source, b ...Source) []Source {
	for _, src := range b {
		a = mergeSource(a, src)
	}
	return a
}
