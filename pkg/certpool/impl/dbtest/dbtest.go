package dbtest

import (
	"context"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/scionproto/scion/pkg/scrypto/cppki"

	"github.com/fancl20/sigval/pkg/certpool"
	"github.com/fancl20/sigval/pkg/diag"
	"github.com/fancl20/sigval/pkg/pki"
)

var (
	// DefaultTimeout is the default timeout for running the test harness.
	DefaultTimeout = 5 * time.Second
)

// Config holds the configuration for the entity database testing harness.
type Config struct {
	Timeout time.Duration
}

// InitDefaults initializes the default values for the config.
func (cfg *Config) InitDefaults() {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
}

// TestableDB extends the entity db interface with methods that are needed
// for testing.
type TestableDB interface {
	certpool.DB
	// Prepare should reset the internal state so that the db is empty and is
	// ready to be tested.
	Prepare(*testing.T, context.Context)
}

// Run should be used to test any implementation of the certpool.DB
// interface. An implementation interface should at least have one test
// method that calls this test-suite.
func Run(t *testing.T, db TestableDB, cfg Config) {
	cfg.InitDefaults()
	tests := map[string]func(*testing.T, certpool.DB, Config){
		"test entity":  testEntity,
		"test sources": testSources,
		"test pool":    testPool,
	}
	// Run test suite on DB directly.
	for name, test := range tests {
		t.Run("DB: "+name, func(t *testing.T) {
			ctx, cancelF := context.WithTimeout(context.Background(), cfg.Timeout)
			defer cancelF()
			db.Prepare(t, ctx)
			test(t, db, cfg)
			db.Close()
		})
	}
}

type fixtures struct {
	root    *diag.CertificateToken
	ca      *diag.CertificateToken
	signer1 *diag.CertificateToken
	signer2 *diag.CertificateToken
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func loadFixtures(t *testing.T) fixtures {
	root, err := pki.NewRoot("Root", cppki.Validity{
		NotBefore: date(2019, 1, 1),
		NotAfter:  date(2030, 1, 1),
	})
	if err != nil {
		t.Fatalf("NewRoot failed: %v", err)
	}
	ca, err := root.NewIntermediate("CA", cppki.Validity{
		NotBefore: date(2019, 6, 1),
		NotAfter:  date(2025, 1, 1),
	})
	if err != nil {
		t.Fatalf("NewIntermediate failed: %v", err)
	}
	signer1, err := ca.Issue("Signer 1", cppki.Validity{
		NotBefore: date(2020, 1, 1),
		NotAfter:  date(2021, 1, 1),
	})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	signer2, err := ca.Issue("Signer 2", cppki.Validity{
		NotBefore: date(2020, 6, 1),
		NotAfter:  date(2022, 1, 1),
	})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	return fixtures{
		root:    root.Token(),
		ca:      ca.Token(),
		signer1: signer1.Token(),
		signer2: signer2.Token(),
	}
}

var (
	trustedList = certpool.Source{Name: "trusted-list", Kind: diag.SourceTrustedList, Trusted: true}
	signature   = certpool.Source{Name: "signature", Kind: diag.SourceSignature}
	timestamp   = certpool.Source{Name: "timestamp", Kind: diag.SourceTimestamp}
)

func ids(entities []certpool.StoredEntity) []string {
	var r []string
	for _, e := range entities {
		r = append(r, e.Certificate.ID())
	}
	slices.Sort(r)
	return r
}

func tokenIDs(tokens ...*diag.CertificateToken) []string {
	var r []string
	for _, c := range tokens {
		r = append(r, c.ID())
	}
	slices.Sort(r)
	return r
}

func testEntity(t *testing.T, db certpool.DB, cfg Config) {
	f := loadFixtures(t)

	ctx, cancelF := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancelF()

	for _, c := range []*diag.CertificateToken{f.root, f.ca} {
		in, err := db.InsertEntity(ctx, certpool.StoredEntity{
			Certificate: c,
			Sources:     []certpool.Source{trustedList},
		})
		if err != nil {
			t.Fatalf("InsertEntity failed: %v", err)
		}
		if !in {
			t.Fatal("InsertEntity should return true for new entity")
		}
	}
	in, err := db.InsertEntity(ctx, certpool.StoredEntity{
		Certificate: f.signer1,
		Sources:     []certpool.Source{signature},
	})
	if err != nil || !in {
		t.Fatalf("InsertEntity failed: in=%v, err=%v", in, err)
	}

	t.Run("InsertEntity", func(t *testing.T) {
		t.Run("Missing certificate", func(t *testing.T) {
			in, err := db.InsertEntity(ctx, certpool.StoredEntity{})
			if err == nil {
				t.Error("InsertEntity should return error for missing certificate")
			}
			if in {
				t.Error("InsertEntity should return false for missing certificate")
			}
		})
		t.Run("Insert existing", func(t *testing.T) {
			in, err := db.InsertEntity(ctx, certpool.StoredEntity{
				Certificate: f.signer1,
				Sources:     []certpool.Source{signature},
			})
			if err != nil {
				t.Errorf("InsertEntity failed: %v", err)
			}
			if in {
				t.Error("InsertEntity should return false for existing entity")
			}
		})
	})
	t.Run("Entities", func(t *testing.T) {
		t.Run("All entities", func(t *testing.T) {
			entities, err := db.Entities(ctx, certpool.Query{})
			if err != nil {
				t.Errorf("Entities failed: %v", err)
			}
			expected := tokenIDs(f.root, f.ca, f.signer1)
			if !cmp.Equal(ids(entities), expected) {
				t.Errorf("Entities should return all entities, got %v, want %v", ids(entities), expected)
			}
		})
		t.Run("Non existing key", func(t *testing.T) {
			entities, err := db.Entities(ctx, certpool.Query{SubjectKeyID: []byte("non-existing")})
			if err != nil {
				t.Errorf("Entities failed: %v", err)
			}
			if len(entities) != 0 {
				t.Errorf("Entities should return empty slice for non-existing key, got %v", ids(entities))
			}
		})
		t.Run("By subject key identifier", func(t *testing.T) {
			entities, err := db.Entities(ctx, certpool.Query{
				SubjectKeyID: f.signer1.SubjectKeyID(),
			})
			if err != nil {
				t.Errorf("Entities failed: %v", err)
			}
			expected := tokenIDs(f.signer1)
			if !cmp.Equal(ids(entities), expected) {
				t.Fatalf("Entities should return the expected entity, got %v, want %v", ids(entities), expected)
			}
			if !entities[0].Certificate.Equal(f.signer1) {
				t.Error("Entities should return the inserted certificate")
			}
		})
		t.Run("Query time out of range", func(t *testing.T) {
			entities, err := db.Entities(ctx, certpool.Query{
				SubjectKeyID: f.signer1.SubjectKeyID(),
				Validity: cppki.Validity{
					NotBefore: date(2021, 1, 2),
					NotAfter:  date(2021, 1, 2),
				},
			})
			if err != nil {
				t.Errorf("Entities failed: %v", err)
			}
			if len(entities) != 0 {
				t.Errorf("Entities should return empty slice for time out of range, got %v", ids(entities))
			}
		})
		t.Run("Active in a given time", func(t *testing.T) {
			entities, err := db.Entities(ctx, certpool.Query{
				Validity: cppki.Validity{
					NotBefore: date(2019, 3, 1),
					NotAfter:  date(2019, 3, 1),
				},
			})
			if err != nil {
				t.Errorf("Entities failed: %v", err)
			}
			expected := tokenIDs(f.root)
			if !cmp.Equal(ids(entities), expected) {
				t.Errorf("Entities should return active entities, got %v, want %v", ids(entities), expected)
			}
		})
		t.Run("Trusted only", func(t *testing.T) {
			entities, err := db.Entities(ctx, certpool.Query{TrustedOnly: true})
			if err != nil {
				t.Errorf("Entities failed: %v", err)
			}
			expected := tokenIDs(f.root, f.ca)
			if !cmp.Equal(ids(entities), expected) {
				t.Errorf("Entities should return trusted entities, got %v, want %v", ids(entities), expected)
			}
		})
	})
}

func testSources(t *testing.T, db certpool.DB, cfg Config) {
	f := loadFixtures(t)

	ctx, cancelF := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancelF()

	untrusted := trustedList
	untrusted.Trusted = false
	for _, src := range []certpool.Source{signature, untrusted, timestamp, trustedList, signature} {
		if _, err := db.InsertEntity(ctx, certpool.StoredEntity{
			Certificate: f.signer2,
			Sources:     []certpool.Source{src},
		}); err != nil {
			t.Fatalf("InsertEntity failed: %v", err)
		}
	}

	entities, err := db.Entities(ctx, certpool.Query{SubjectKeyID: f.signer2.SubjectKeyID()})
	if err != nil {
		t.Fatalf("Entities failed: %v", err)
	}
	if len(entities) != 1 {
		t.Fatalf("Entities should return one entity, got %d", len(entities))
	}
	expected := []certpool.Source{signature, timestamp, trustedList}
	slices.SortFunc(expected, func(a, b certpool.Source) int { return strings.Compare(a.Name, b.Name) })
	if !cmp.Equal(entities[0].Sources, expected) {
		t.Errorf("sources mismatch (-want +got):\n%s", cmp.Diff(expected, entities[0].Sources))
	}
}

func testPool(t *testing.T, db certpool.DB, cfg Config) {
	f := loadFixtures(t)

	ctx, cancelF := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancelF()

	pool := certpool.New()
	pool.Register(f.root, trustedList)
	pool.Register(f.ca, signature)
	pool.Register(f.signer1, signature)
	pool.Register(f.signer1, timestamp)

	n, err := pool.Save(ctx, db)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Save should insert 3 entities, got %d", n)
	}
	n, err = pool.Save(ctx, db)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Save should not insert existing entities, got %d", n)
	}

	loaded := certpool.New()
	if err := loaded.Load(ctx, db, certpool.Query{}); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cmp.Equal(loaded.Entities(), pool.Entities(), cmp.Comparer(
		func(a, b *diag.CertificateToken) bool { return a.Equal(b) })) {
		t.Errorf("loaded pool differs from saved pool")
	}
	if !loaded.IsTrusted(f.root) {
		t.Error("root should be trusted after Load")
	}
	if loaded.IsTrusted(f.signer1) {
		t.Error("signer should not be trusted after Load")
	}
}
