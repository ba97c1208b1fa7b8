// Package pki generates in-process certificate hierarchies, CRLs and OCSP
// responses. It is used to build diagnostic snapshots for tests and
// examples; nothing in here is meant to protect production keys.
package pki

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"

	"github.com/scionproto/scion/pkg/scrypto/cppki"

	"github.com/fancl20/sigval/pkg/diag"
)

// Authority is a certificate together with the private key that can issue
// certificates, CRLs and OCSP responses.
type Authority struct {
	Cert *x509.Certificate
	Key  crypto.Signer
}

// Token returns the authority certificate as a token.
func (a *Authority) Token() *diag.CertificateToken {
	return diag.NewCertificateToken(a.Cert)
}

// Option customizes a certificate template before signing.
type Option func(*x509.Certificate)

// WithKeyUsage overrides the key usage bits.
func WithKeyUsage(ku x509.KeyUsage) Option {
	return func(tpl *x509.Certificate) {
		tpl.KeyUsage = ku
	}
}

// WithExtKeyUsage sets the extended key usages.
func WithExtKeyUsage(eku ...x509.ExtKeyUsage) Option {
	return func(tpl *x509.Certificate) {
		tpl.ExtKeyUsage = eku
	}
}

// WithSerial fixes the serial number.
func WithSerial(serial int64) Option {
	return func(tpl *x509.Certificate) {
		tpl.SerialNumber = big.NewInt(serial)
	}
}

// NewRoot generates a self-signed root CA.
func NewRoot(commonName string, validity cppki.Validity, opts ...Option) (*Authority, error) {
	privKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ECDSA key: %w", err)
	}
	tpl, err := template(commonName, privKey.Public(), validity)
	if err != nil {
		return nil, err
	}
	tpl.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign
	tpl.BasicConstraintsValid = true
	tpl.IsCA = true
	tpl.MaxPathLen = 1
	for _, opt := range opts {
		opt(tpl)
	}

	cert, err := sign(tpl, tpl, privKey.Public(), privKey)
	if err != nil {
		return nil, err
	}
	return &Authority{Cert: cert, Key: privKey}, nil
}

// NewIntermediate issues a subordinate CA certificate.
func (a *Authority) NewIntermediate(commonName string, validity cppki.Validity,
	opts ...Option) (*Authority, error) {

	privKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ECDSA key: %w", err)
	}
	tpl, err := template(commonName, privKey.Public(), validity)
	if err != nil {
		return nil, err
	}
	tpl.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign
	tpl.BasicConstraintsValid = true
	tpl.IsCA = true
	tpl.MaxPathLenZero = true
	for _, opt := range opts {
		opt(tpl)
	}

	cert, err := sign(tpl, a.Cert, privKey.Public(), a.Key)
	if err != nil {
		return nil, err
	}
	return &Authority{Cert: cert, Key: privKey}, nil
}

// Issue issues an end-entity certificate. By default the certificate carries
// the digitalSignature and contentCommitment key usages.
func (a *Authority) Issue(commonName string, validity cppki.Validity,
	opts ...Option) (*Authority, error) {

	privKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ECDSA key: %w", err)
	}
	tpl, err := template(commonName, privKey.Public(), validity)
	if err != nil {
		return nil, err
	}
	tpl.KeyUsage = x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment
	tpl.BasicConstraintsValid = true
	for _, opt := range opts {
		opt(tpl)
	}

	cert, err := sign(tpl, a.Cert, privKey.Public(), a.Key)
	if err != nil {
		return nil, err
	}
	return &Authority{Cert: cert, Key: privKey}, nil
}

func template(commonName string, pubKey crypto.PublicKey,
	validity cppki.Validity) (*x509.Certificate, error) {

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}
	subjectKeyID, err := cppki.SubjectKeyID(pubKey)
	if err != nil {
		return nil, fmt.Errorf("failed to compute subject key identifier: %w", err)
	}
	return &x509.Certificate{
		SerialNumber:       serialNumber,
		Subject:            pkix.Name{CommonName: commonName, Organization: []string{"sigval"}},
		NotBefore:          validity.NotBefore,
		NotAfter:           validity.NotAfter,
		SignatureAlgorithm: x509.ECDSAWithSHA256,
		SubjectKeyId:       subjectKeyID,
	}, nil
}

func sign(tpl, parent *x509.Certificate, pubKey crypto.PublicKey,
	signer crypto.Signer) (*x509.Certificate, error) {

	certBytes, err := x509.CreateCertificate(rand.Reader, tpl, parent, pubKey, signer)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(certBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse generated certificate: %w", err)
	}
	return cert, nil
}
