// Package revocation selects revocation evidence for a certificate.
//
// Revocation binaries collected in the diagnostic snapshot are parsed lazily
// into tokens, at most once per binary and issuer. A Source selects the best
// fitting token for a certificate; a Composite chains sources in priority
// order.
package revocation

import (
	"bytes"
	"crypto/x509"
	"math/big"
	"time"

	"github.com/scionproto/scion/pkg/private/serrors"
	"github.com/scionproto/scion/pkg/scrypto/cppki"
	"golang.org/x/crypto/ocsp"

	"github.com/fancl20/sigval/pkg/diag"
)

// Status is the revocation status of a certificate.
type Status int

const (
	Good Status = iota
	Revoked
	Unknown
)

func (s Status) String() string {
	switch s {
	case Good:
		return "good"
	case Revoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// Entry is the status a token reports for one certificate.
type Entry struct {
	Status         Status
	RevocationTime time.Time
	Reason         int
}

// Token is a parsed CRL or OCSP response. Tokens are never mutated once
// constructed.
type Token struct {
	Kind   diag.RevocationKind
	ID     string
	Origin diag.RevocationOrigin
	// IssuerID is the id of the certificate the token was verified against.
	IssuerID   string
	ThisUpdate time.Time
	// NextUpdate is zero if the token does not announce a next update.
	NextUpdate time.Time
	// ProducedAt is only set for OCSP responses.
	ProducedAt     time.Time
	SignatureValid bool

	entries map[string]Entry
}

// Status returns the entry for the certificate with the given serial. A CRL
// reports Good for serials it does not list, an OCSP response reports Unknown
// for serials it was not produced for.
func (t *Token) Status(serial *big.Int) Entry {
	if e, ok := t.entries[serial.String()]; ok {
		return e
	}
	if t.Kind == diag.CRL {
		return Entry{Status: Good}
	}
	return Entry{Status: Unknown}
}

// Intersects reports whether the [thisUpdate, nextUpdate] window intersects
// the validity period. A token without next update has an open window.
func (t *Token) Intersects(v cppki.Validity) bool {
	if t.ThisUpdate.After(v.NotAfter) {
		return false
	}
	return t.NextUpdate.IsZero() || !t.NextUpdate.Before(v.NotBefore)
}

// FreshAt reports whether t lies within the [thisUpdate, nextUpdate] window.
func (t *Token) FreshAt(at time.Time) bool {
	if at.Before(t.ThisUpdate) {
		return false
	}
	return t.NextUpdate.IsZero() || !at.After(t.NextUpdate)
}

func (t *Token) String() string {
	return t.Kind.String() + " " + t.ID
}

func parseCRL(bin diag.RevocationBinary, _, issuer *diag.CertificateToken) (*Token, error) {
	crl, err := x509.ParseRevocationList(bin.Raw)
	if err != nil {
		return nil, serrors.Wrap("parsing CRL", err, "id", bin.ID())
	}
	t := &Token{
		Kind:       diag.CRL,
		ID:         bin.ID(),
		Origin:     bin.Origin,
		IssuerID:   issuer.ID(),
		ThisUpdate: crl.ThisUpdate,
		NextUpdate: crl.NextUpdate,
		entries:    make(map[string]Entry, len(crl.RevokedCertificateEntries)),
	}
	t.SignatureValid = bytes.Equal(crl.RawIssuer, issuer.Subject()) &&
		crl.CheckSignatureFrom(issuer.Certificate()) == nil
	for _, e := range crl.RevokedCertificateEntries {
		t.entries[e.SerialNumber.String()] = Entry{
			Status:         Revoked,
			RevocationTime: e.RevocationTime,
			Reason:         e.ReasonCode,
		}
	}
	return t, nil
}

func parseOCSP(bin diag.RevocationBinary, cert, issuer *diag.CertificateToken) (*Token, error) {
	resp, err := ocsp.ParseResponseForCert(bin.Raw, cert.Certificate(), issuer.Certificate())
	if err != nil {
		// Covers signature failures and responses for other certificates.
		return nil, serrors.Wrap("parsing OCSP response", err, "id", bin.ID())
	}
	t := &Token{
		Kind:           diag.OCSP,
		ID:             bin.ID(),
		Origin:         bin.Origin,
		IssuerID:       issuer.ID(),
		ThisUpdate:     resp.ThisUpdate,
		NextUpdate:     resp.NextUpdate,
		ProducedAt:     resp.ProducedAt,
		SignatureValid: true,
		entries:        make(map[string]Entry, 1),
	}
	e := Entry{Status: Unknown}
	switch resp.Status {
	case ocsp.Good:
		e.Status = Good
	case ocsp.Revoked:
		e = Entry{
			Status:         Revoked,
			RevocationTime: resp.RevokedAt,
			Reason:         resp.RevocationReason,
		}
	}
	t.entries[resp.SerialNumber.String()] = e
	if t.ThisUpdate.IsZero() {
		t.ThisUpdate = t.ProducedAt
	}
	return t, nil
}
