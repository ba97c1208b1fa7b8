package bbb_test

import (
	"crypto/x509"
	"testing"
	"time"

	"github.com/scionproto/scion/pkg/log/testlog"
	"github.com/scionproto/scion/pkg/scrypto/cppki"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fancl20/sigval/pkg/bbb"
	"github.com/fancl20/sigval/pkg/diag"
	"github.com/fancl20/sigval/pkg/pki"
	"github.com/fancl20/sigval/pkg/poe"
	"github.com/fancl20/sigval/pkg/revocation"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

type certs struct {
	ca     *pki.Authority
	leaf   *pki.Authority
	cert   *diag.CertificateToken
	issuer *diag.CertificateToken
}

func newCerts(t *testing.T) certs {
	t.Helper()
	ca, err := pki.NewRoot("CA", cppki.Validity{NotBefore: date(2019, 1, 1), NotAfter: date(2030, 1, 1)})
	require.NoError(t, err)
	leaf, err := ca.Issue("Signer", cppki.Validity{NotBefore: date(2020, 1, 1), NotAfter: date(2021, 1, 1)})
	require.NoError(t, err)
	return certs{ca: ca, leaf: leaf, cert: leaf.Token(), issuer: ca.Token()}
}

func (c certs) token(t *testing.T, revoked ...pki.Revoked) *revocation.Token {
	t.Helper()
	raw, err := c.ca.CRL(date(2020, 6, 1), date(2020, 12, 1), revoked...)
	require.NoError(t, err)
	cache, err := revocation.NewCache(revocation.CacheOptions{})
	require.NoError(t, err)
	src := revocation.NewCRLSource([]diag.RevocationBinary{{Raw: raw, Kind: diag.CRL}},
		cache, testlog.NewLogger(t))
	tok, err := src.Revocation(c.cert, c.issuer)
	require.NoError(t, err)
	require.NotNil(t, tok)
	return tok
}

func registry(t *testing.T, objectID string, at ...time.Time) *poe.Registry {
	t.Helper()
	r := poe.NewRegistry()
	for _, a := range at {
		p, err := poe.NewControlTime(a)
		require.NoError(t, err)
		require.NoError(t, r.Add(objectID, p))
	}
	return r
}

func TestSigningCertificateChecks(t *testing.T) {
	c := newCerts(t)

	conclusion := run(bbb.SigningCertificateFound(nil))
	assert.Equal(t, bbb.NoSigningCertificateFound, conclusion.SubIndication)
	assert.True(t, run(bbb.SigningCertificateFound(c.cert)).Passed())

	assert.True(t, run(bbb.SigningCertificateKeyUsage(c.cert, x509.KeyUsageDigitalSignature)).Passed())
	// WARN level in the default policy.
	conclusion = run(bbb.SigningCertificateKeyUsage(c.cert, x509.KeyUsageCertSign))
	assert.True(t, conclusion.Passed())
	assert.Len(t, conclusion.Warnings, 1)
}

func TestTrustAnchorReached(t *testing.T) {
	c := newCerts(t)
	chain := []*diag.CertificateToken{c.cert, c.issuer}
	trusted := func(tok *diag.CertificateToken) bool { return tok.Equal(c.issuer) }

	conclusion, results := bbb.Chain{bbb.TrustAnchorReached(chain, trusted)}.Run(nil)
	assert.True(t, conclusion.Passed())
	require.Len(t, results[0].Children, 2)
	assert.Equal(t, bbb.StatusInformation, results[0].Children[0].Status)
	assert.Equal(t, bbb.StatusOK, results[0].Children[1].Status)

	none := func(*diag.CertificateToken) bool { return false }
	conclusion = run(bbb.TrustAnchorReached(chain, none))
	assert.Equal(t, bbb.Failure{Indication: bbb.Indeterminate, SubIndication: bbb.NoCertificateChainFound},
		failureOf(conclusion))
}

func TestCertificateValidity(t *testing.T) {
	c := newCerts(t)
	outOfBounds := bbb.Failure{Indication: bbb.Indeterminate, SubIndication: bbb.OutOfBoundsNoPOE}
	testCases := map[string]struct {
		At   time.Time
		POE  []time.Time
		Cert *diag.CertificateToken
		Want bbb.Failure
	}{
		"within validity": {
			At:   date(2020, 6, 1),
			Cert: c.cert,
			Want: bbb.Failure{Indication: bbb.Passed},
		},
		"expired without proof of existence": {
			At:   date(2022, 1, 1),
			Cert: c.cert,
			Want: outOfBounds,
		},
		"expired with proof of existence": {
			At:   date(2022, 1, 1),
			POE:  []time.Time{date(2020, 3, 1), date(2022, 1, 1)},
			Cert: c.cert,
			Want: bbb.Failure{Indication: bbb.Passed},
		},
		"expired with late proof of existence": {
			At:   date(2022, 1, 1),
			POE:  []time.Time{date(2021, 6, 1)},
			Cert: c.cert,
			Want: outOfBounds,
		},
		"not yet valid": {
			At:   date(2019, 6, 1),
			POE:  []time.Time{date(2020, 3, 1)},
			Cert: c.cert,
			Want: outOfBounds,
		},
		"missing certificate": {
			At:   date(2020, 6, 1),
			Want: outOfBounds,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			check := bbb.CertificateValidity(tc.Cert, tc.At, registry(t, "S-1", tc.POE...), "S-1")
			assert.Equal(t, tc.Want, failureOf(run(check)))
		})
	}
}

func TestRevocationChecks(t *testing.T) {
	c := newCerts(t)
	good := c.token(t)
	revoked := c.token(t, pki.Revoked{Cert: c.leaf.Cert, At: date(2020, 5, 1), Reason: 1})

	t.Run("available", func(t *testing.T) {
		assert.True(t, run(bbb.RevocationDataAvailable(c.cert, good)).Passed())
		conclusion := run(bbb.RevocationDataAvailable(c.cert, nil))
		assert.Equal(t, bbb.TryLater, conclusion.SubIndication)
	})
	t.Run("not revoked", func(t *testing.T) {
		assert.True(t, run(bbb.CertificateNotRevoked(c.cert, good, nil, "S-1", false)).Passed())
		assert.True(t, run(bbb.CertificateNotRevoked(c.cert, nil, nil, "S-1", false)).Passed())
	})
	t.Run("revoked without proof of existence", func(t *testing.T) {
		r := registry(t, "S-1", date(2020, 7, 1))
		conclusion := run(bbb.CertificateNotRevoked(c.cert, revoked, r, "S-1", false))
		assert.Equal(t, bbb.RevokedNoPOE, conclusion.SubIndication)
		conclusion = run(bbb.CertificateNotRevoked(c.cert, revoked, r, "S-1", true))
		assert.Equal(t, bbb.RevokedCANoPOE, conclusion.SubIndication)
	})
	t.Run("revoked after proof of existence", func(t *testing.T) {
		r := registry(t, "S-1", date(2020, 4, 1))
		conclusion, results := bbb.Chain{bbb.CertificateNotRevoked(c.cert, revoked, r, "S-1", false)}.Run(nil)
		assert.True(t, conclusion.Passed())
		assert.Contains(t, results[0].AdditionalInfo, "proof of existence")
	})
	t.Run("freshness", func(t *testing.T) {
		strict := bbb.Chain{bbb.RevocationFreshness(good, date(2021, 1, 1))}
		conclusion, _ := strict.Run(nil)
		assert.Equal(t, bbb.TryLater, conclusion.SubIndication)
		conclusion, _ = bbb.Chain{bbb.RevocationFreshness(good, date(2020, 9, 1))}.Run(nil)
		assert.True(t, conclusion.Passed())
		// WARN level in the default policy.
		assert.True(t, run(bbb.RevocationFreshness(good, date(2021, 1, 1))).Passed())
	})
}
