package pki

import (
	"crypto/rand"
	"crypto/x509"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/ocsp"
)

var crlNumber atomic.Int64

// Revoked describes a CRL entry.
type Revoked struct {
	Cert   *x509.Certificate
	At     time.Time
	Reason int
}

// CRL issues a DER encoded CRL. A zero nextUpdate yields a CRL without a
// nextUpdate field.
func (a *Authority) CRL(thisUpdate, nextUpdate time.Time, revoked ...Revoked) ([]byte, error) {
	tpl := &x509.RevocationList{
		Number:     big.NewInt(crlNumber.Add(1)),
		ThisUpdate: thisUpdate,
		NextUpdate: nextUpdate,
	}
	for _, r := range revoked {
		tpl.RevokedCertificateEntries = append(tpl.RevokedCertificateEntries,
			x509.RevocationListEntry{
				SerialNumber:   r.Cert.SerialNumber,
				RevocationTime: r.At,
				ReasonCode:     r.Reason,
			})
	}
	raw, err := x509.CreateRevocationList(rand.Reader, tpl, a.Cert, a.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to create CRL: %w", err)
	}
	return raw, nil
}

// OCSPStatus describes the status an OCSP response reports. The producedAt
// field of the response is always set to the current time, truncated to the
// minute.
type OCSPStatus struct {
	// Status is one of ocsp.Good, ocsp.Revoked, ocsp.Unknown.
	Status     int
	ThisUpdate time.Time
	NextUpdate time.Time
	RevokedAt  time.Time
	Reason     int
}

// OCSP issues a DER encoded OCSP response for cert, signed directly by the
// authority.
func (a *Authority) OCSP(cert *x509.Certificate, st OCSPStatus) ([]byte, error) {
	tpl := ocsp.Response{
		Status:           st.Status,
		SerialNumber:     cert.SerialNumber,
		ThisUpdate:       st.ThisUpdate,
		NextUpdate:       st.NextUpdate,
		RevokedAt:        st.RevokedAt,
		RevocationReason: st.Reason,
	}
	raw, err := ocsp.CreateResponse(a.Cert, a.Cert, tpl, a.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to create OCSP response: %w", err)
	}
	return raw, nil
}
