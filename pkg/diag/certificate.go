// Package diag holds the diagnostic snapshot handed to the validation engine.
// Everything in here is already extracted from the signed container; the
// engine only evaluates it.
package diag

import (
	"bytes"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/scionproto/scion/pkg/scrypto/cppki"
)

// CertificateToken is an immutable view on a parsed X.509 certificate. Its
// identity is the digest of the DER encoding.
type CertificateToken struct {
	cert *x509.Certificate
	id   string
}

// NewCertificateToken wraps a parsed certificate.
func NewCertificateToken(cert *x509.Certificate) *CertificateToken {
	sum := sha256.Sum256(cert.Raw)
	return &CertificateToken{
		cert: cert,
		id:   "C-" + strings.ToUpper(hex.EncodeToString(sum[:])),
	}
}

// ParseCertificateToken parses a DER encoded certificate.
func ParseCertificateToken(der []byte) (*CertificateToken, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parsing certificate: %w", err)
	}
	return NewCertificateToken(cert), nil
}

// ID returns the content derived identifier of the certificate.
func (c *CertificateToken) ID() string {
	return c.id
}

// Certificate returns the underlying certificate. It must not be modified.
func (c *CertificateToken) Certificate() *x509.Certificate {
	return c.cert
}

// Raw returns the DER encoding.
func (c *CertificateToken) Raw() []byte {
	return c.cert.Raw
}

// Subject returns the DER encoded subject name.
func (c *CertificateToken) Subject() []byte {
	return c.cert.RawSubject
}

// Issuer returns the DER encoded issuer name.
func (c *CertificateToken) Issuer() []byte {
	return c.cert.RawIssuer
}

// SubjectName returns the subject in RFC 2253 form for log output.
func (c *CertificateToken) SubjectName() string {
	return c.cert.Subject.String()
}

// PublicKey returns the DER encoded SubjectPublicKeyInfo.
func (c *CertificateToken) PublicKey() []byte {
	return c.cert.RawSubjectPublicKeyInfo
}

// SubjectKeyID returns the subject key identifier extension value, if any.
func (c *CertificateToken) SubjectKeyID() []byte {
	return c.cert.SubjectKeyId
}

// AuthorityKeyID returns the authority key identifier extension value, if any.
func (c *CertificateToken) AuthorityKeyID() []byte {
	return c.cert.AuthorityKeyId
}

// SerialNumber returns the certificate serial number.
func (c *CertificateToken) SerialNumber() *big.Int {
	return c.cert.SerialNumber
}

// Validity returns the [notBefore, notAfter] interval.
func (c *CertificateToken) Validity() cppki.Validity {
	return cppki.Validity{NotBefore: c.cert.NotBefore, NotAfter: c.cert.NotAfter}
}

// KeyUsage returns the key usage bits.
func (c *CertificateToken) KeyUsage() x509.KeyUsage {
	return c.cert.KeyUsage
}

// IsSelfSigned reports whether subject and issuer are equal and the
// certificate verifies with its own key.
func (c *CertificateToken) IsSelfSigned() bool {
	if !bytes.Equal(c.cert.RawSubject, c.cert.RawIssuer) {
		return false
	}
	return c.cert.CheckSignatureFrom(c.cert) == nil
}

// IsSignedBy reports whether issuer's key verifies the certificate signature.
func (c *CertificateToken) IsSignedBy(issuer *CertificateToken) bool {
	if issuer == nil || !bytes.Equal(c.cert.RawIssuer, issuer.cert.RawSubject) {
		return false
	}
	return c.cert.CheckSignatureFrom(issuer.cert) == nil
}

// Equal reports whether both tokens wrap the same encoded certificate.
func (c *CertificateToken) Equal(o *CertificateToken) bool {
	if c == nil || o == nil {
		return c == o
	}
	return c.id == o.id
}

func (c *CertificateToken) String() string {
	return fmt.Sprintf("%s (%s)", c.id, c.cert.Subject)
}

// SourceKind is the kind of origin that vouches for a certificate.
type SourceKind int

const (
	SourceUnknown SourceKind = iota
	// SourceTrustedList is a certificate obtained from a trusted list or a
	// configured trust store.
	SourceTrustedList
	// SourceSignature is a certificate embedded in a signature.
	SourceSignature
	// SourceTimestamp is a certificate embedded in a timestamp token.
	SourceTimestamp
	// SourceRevocation is a certificate embedded in an OCSP response.
	SourceRevocation
	// SourceEvidenceRecord is a certificate embedded in an evidence record.
	SourceEvidenceRecord
	// SourceAIA is a certificate retrieved from an authority information
	// access location by an upstream collaborator.
	SourceAIA
)

func (k SourceKind) String() string {
	switch k {
	case SourceTrustedList:
		return "TRUSTED_LIST"
	case SourceSignature:
		return "SIGNATURE"
	case SourceTimestamp:
		return "TIMESTAMP"
	case SourceRevocation:
		return "OCSP_RESPONSE"
	case SourceEvidenceRecord:
		return "EVIDENCE_RECORD"
	case SourceAIA:
		return "AIA"
	default:
		return "UNKNOWN"
	}
}

// CertificateSource names a source of certificates.
type CertificateSource struct {
	Name    string
	Kind    SourceKind
	Trusted bool
}

// SourcedCertificate is a certificate together with the sources that
// delivered it in the snapshot.
type SourcedCertificate struct {
	Certificate *CertificateToken
	Sources     []CertificateSource
}
