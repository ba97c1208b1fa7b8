package bbolt

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"slices"

	"go.etcd.io/bbolt"

	"github.com/fancl20/sigval/pkg/certpool"
	"github.com/fancl20/sigval/pkg/diag"
)

var (
	entitiesBucket = []byte("entities")
	certKey        = []byte("cert")
	sourcesBucket  = []byte("sources")
)

type bboltDB struct {
	db *bbolt.DB
}

func New(path string, opts *bbolt.Options) (certpool.DB, error) {
	db, err := bbolt.Open(path, 0600, opts)
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(entitiesBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &bboltDB{
		db: db,
	}, nil
}

// Entities looks up all entities that match the query.
func (b *bboltDB) Entities(ctx context.Context, query certpool.Query) ([]certpool.StoredEntity, error) {
	var entities []certpool.StoredEntity
	if err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(entitiesBucket).Cursor()

		for k, _ := c.Seek(query.SubjectKeyID); k != nil && bytes.HasPrefix(k, query.SubjectKeyID); k, _ = c.Next() {
			e, err := readEntity(tx.Bucket(entitiesBucket).Bucket(k))
			if err != nil {
				return fmt.Errorf("reading entity %x: %w", k, err)
			}
			if query.Matches(e) {
				entities = append(entities, e)
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return entities, nil
}

// InsertEntity inserts the given entity. Sources of an existing entity are
// merged.
func (b *bboltDB) InsertEntity(ctx context.Context, e certpool.StoredEntity) (bool, error) {
	if e.Certificate == nil {
		return false, fmt.Errorf("invalid entity, missing certificate")
	}

	var existed bool
	if err := b.db.Update(func(tx *bbolt.Tx) error {
		key := entityKey(e.Certificate)
		eb := tx.Bucket(entitiesBucket).Bucket(key)
		if eb != nil {
			existed = true
			if !bytes.Equal(eb.Get(certKey), e.Certificate.Raw()) {
				return fmt.Errorf("insert conflicted entity")
			}
		} else {
			var err error
			if eb, err = tx.Bucket(entitiesBucket).CreateBucket(key); err != nil {
				return err
			}
			if err := eb.Put(certKey, e.Certificate.Raw()); err != nil {
				return err
			}
		}
		sb, err := eb.CreateBucketIfNotExists(sourcesBucket)
		if err != nil {
			return err
		}
		for _, src := range e.Sources {
			v := encodeSource(src)
			if old := sb.Get([]byte(src.Name)); old != nil {
				v = encodeSource(certpool.MergeSources(
					[]certpool.Source{decodeSource(src.Name, old)}, src)[0])
			}
			if err := sb.Put([]byte(src.Name), v); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return false, err
	}

	return !existed, nil
}

func (b *bboltDB) Close() error {
	return b.db.Close()
}

func readEntity(eb *bbolt.Bucket) (certpool.StoredEntity, error) {
	if eb == nil {
		return certpool.StoredEntity{}, fmt.Errorf("not an entity bucket")
	}
	cert, err := diag.ParseCertificateToken(slices.Clone(eb.Get(certKey)))
	if err != nil {
		return certpool.StoredEntity{}, err
	}
	e := certpool.StoredEntity{Certificate: cert}
	if sb := eb.Bucket(sourcesBucket); sb != nil {
		// Keys are iterated in byte order, which keeps sources sorted by name.
		if err := sb.ForEach(func(k, v []byte) error {
			e.Sources = append(e.Sources, decodeSource(string(k), v))
			return nil
		}); err != nil {
			return certpool.StoredEntity{}, err
		}
	}
	return e, nil
}

// entityKey prefixes the content digest with the subject key identifier so
// that queries by key can seek.
func entityKey(cert *diag.CertificateToken) []byte {
	sum := sha256.Sum256(cert.Raw())
	return slices.Concat(cert.SubjectKeyID(), sum[:])
}

func encodeSource(src certpool.Source) []byte {
	var trusted byte
	if src.Trusted {
		trusted = 1
	}
	return []byte{byte(src.Kind), trusted}
}

func decodeSource(name string, v []byte) certpool.Source {
	src := certpool.Source{Name: name}
	if len(v) > 0 {
		src.Kind = diag.SourceKind(v[0])
	}
	if len(v) > 1 {
		src.Trusted = v[1] == 1
	}
	return src
}
