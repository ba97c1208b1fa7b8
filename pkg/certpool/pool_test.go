package certpool_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/scionproto/scion/pkg/log/testlog"
	"github.com/scionproto/scion/pkg/scrypto/cppki"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/fancl20/sigval/pkg/certpool"
	"github.com/fancl20/sigval/pkg/diag"
	"github.com/fancl20/sigval/pkg/pki"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type chain struct {
	root   *pki.Authority
	ca     *pki.Authority
	signer *pki.Authority
}

func newChain(t *testing.T) chain {
	t.Helper()
	validity := cppki.Validity{
		NotBefore: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:  time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	root, err := pki.NewRoot("Root", validity)
	require.NoError(t, err)
	ca, err := root.NewIntermediate("CA", validity)
	require.NoError(t, err)
	signer, err := ca.Issue("Signer", validity)
	require.NoError(t, err)
	return chain{root: root, ca: ca, signer: signer}
}

func TestRegister(t *testing.T) {
	c := newChain(t)
	pool := certpool.New(certpool.WithLogger(testlog.NewLogger(t)))

	signer := c.signer.Token()
	id := pool.Register(signer, certpool.Source{Name: "signature", Kind: diag.SourceSignature})
	assert.Equal(t, signer.ID(), id)
	assert.False(t, pool.IsTrusted(signer))

	t.Run("byte identical token from another parse", func(t *testing.T) {
		again, err := diag.ParseCertificateToken(c.signer.Cert.Raw)
		require.NoError(t, err)
		got := pool.Register(again, certpool.Source{Name: "timestamp", Kind: diag.SourceTimestamp})
		assert.Equal(t, id, got)
		assert.Equal(t, 1, pool.Len())
	})
	t.Run("trusted source wins", func(t *testing.T) {
		pool.Register(signer, certpool.Source{Name: "signature", Kind: diag.SourceSignature, Trusted: true})
		assert.True(t, pool.IsTrusted(signer))
		pool.Register(signer, certpool.Source{Name: "signature", Kind: diag.SourceSignature})
		assert.True(t, pool.IsTrusted(signer))

		e, ok := pool.Entity(id)
		require.True(t, ok)
		assert.Equal(t, []certpool.Source{
			{Name: "signature", Kind: diag.SourceSignature, Trusted: true},
			{Name: "timestamp", Kind: diag.SourceTimestamp},
		}, e.Sources)
	})
	t.Run("unknown certificate", func(t *testing.T) {
		assert.False(t, pool.IsTrusted(c.root.Token()))
		_, ok := pool.Entity(c.root.Token().ID())
		assert.False(t, ok)
	})
}

func TestEntityIsolation(t *testing.T) {
	c := newChain(t)
	pool := certpool.New()
	id := pool.Register(c.root.Token(), certpool.Source{Name: "tl", Trusted: true})

	e, ok := pool.Entity(id)
	require.True(t, ok)
	e.Sources[0].Trusted = false
	assert.True(t, pool.IsTrusted(c.root.Token()), "returned entity must not alias pool state")
}

func TestLookups(t *testing.T) {
	c := newChain(t)
	pool := certpool.New()
	for _, a := range []*pki.Authority{c.root, c.ca, c.signer} {
		pool.Register(a.Token(), certpool.Source{Name: "signature"})
	}

	t.Run("FindBySubject", func(t *testing.T) {
		got := pool.FindBySubject(c.ca.Cert.RawSubject)
		require.Len(t, got, 1)
		assert.True(t, got[0].Certificate.Equal(c.ca.Token()))
		assert.Empty(t, pool.FindBySubject([]byte("unknown")))
		assert.NotNil(t, pool.FindBySubject(nil))
	})
	t.Run("FindByPublicKey", func(t *testing.T) {
		got := pool.FindByPublicKey(c.signer.Cert.RawSubjectPublicKeyInfo)
		require.Len(t, got, 1)
		assert.True(t, got[0].Certificate.Equal(c.signer.Token()))
		assert.Empty(t, pool.FindByPublicKey([]byte("unknown")))
	})
	t.Run("FindBySubjectKeyIdentifier", func(t *testing.T) {
		got := pool.FindBySubjectKeyIdentifier(c.root.Cert.SubjectKeyId)
		require.Len(t, got, 1)
		assert.True(t, got[0].Certificate.Equal(c.root.Token()))
		assert.Empty(t, pool.FindBySubjectKeyIdentifier(nil))
	})
	t.Run("Issuers", func(t *testing.T) {
		got := pool.Issuers(c.signer.Token())
		require.Len(t, got, 1)
		assert.True(t, got[0].Certificate.Equal(c.ca.Token()))

		got = pool.Issuers(c.root.Token())
		require.Len(t, got, 1, "self-signed root is its own issuer")
		assert.Empty(t, certpool.New().Issuers(c.signer.Token()))
	})
	t.Run("Entities", func(t *testing.T) {
		entities := pool.Entities()
		require.Len(t, entities, 3)
		for i := 1; i < len(entities); i++ {
			assert.Less(t, entities[i-1].ID, entities[i].ID)
		}
	})
}

func TestConcurrentRegisterConverges(t *testing.T) {
	const goroutines = 200

	c := newChain(t)
	raw := [][]byte{c.root.Cert.Raw, c.ca.Cert.Raw, c.signer.Cert.Raw}
	pool := certpool.New()

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			for j := range raw {
				// Every goroutine parses its own token, so only the bytes are
				// shared.
				tok, err := diag.ParseCertificateToken(raw[(i+j)%len(raw)])
				if err != nil {
					t.Errorf("parsing certificate: %v", err)
					return
				}
				pool.Register(tok, certpool.Source{
					Name:    fmt.Sprintf("source-%03d", i),
					Kind:    diag.SourceSignature,
					Trusted: i == goroutines-1,
				})
			}
		}(i)
	}
	close(start)
	wg.Wait()

	require.Equal(t, 3, pool.Len())
	for _, r := range raw {
		tok, err := diag.ParseCertificateToken(r)
		require.NoError(t, err)
		e, ok := pool.Entity(tok.ID())
		require.True(t, ok)
		require.Len(t, e.Sources, goroutines)
		for i, src := range e.Sources {
			assert.Equal(t, fmt.Sprintf("source-%03d", i), src.Name)
		}
		assert.True(t, pool.IsTrusted(tok))

		assert.Len(t, pool.FindBySubject(tok.Subject()), 1)
		assert.Len(t, pool.FindByPublicKey(tok.PublicKey()), 1)
		assert.Len(t, pool.FindBySubjectKeyIdentifier(tok.SubjectKeyID()), 1)
	}
}
