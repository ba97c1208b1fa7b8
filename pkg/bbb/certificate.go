package bbb

import (
	"crypto/x509"
	"fmt"
	"time"

	"github.com/fancl20/sigval/pkg/diag"
	"github.com/fancl20/sigval/pkg/poe"
	"github.com/fancl20/sigval/pkg/revocation"
)

// SigningCertificateFound checks that the signing certificate was
// identified.
func SigningCertificateFound(cert *diag.CertificateToken) Check {
	return Check{
		Name:      ConstraintSigningCertificateFound,
		Message:   "BBB_ICS_SIGNING_CERTIFICATE_FOUND",
		Predicate: func() bool { return cert != nil },
		Failure:   Failure{Indeterminate, NoSigningCertificateFound},
	}
}

// TrustAnchorReached checks that the certificate chain, ordered from the
// signing certificate upwards, contains a trusted certificate.
func TrustAnchorReached(chain []*diag.CertificateToken, trusted func(*diag.CertificateToken) bool) Check {
	return Check{
		Name:    ConstraintTrustAnchorReached,
		Message: "BBB_XCV_TRUST_ANCHOR_REACHED",
		Predicate: func() bool {
			for _, c := range chain {
				if trusted(c) {
					return true
				}
			}
			return false
		},
		Failure: Failure{Indeterminate, NoCertificateChainFound},
		Children: func() []*Result {
			children := make([]*Result, 0, len(chain))
			for _, c := range chain {
				r := &Result{Name: c.ID(), Status: StatusInformation, AdditionalInfo: c.SubjectName()}
				if trusted(c) {
					r.Status = StatusOK
				}
				children = append(children, r)
			}
			return children
		},
	}
}

// SigningCertificateKeyUsage checks that the certificate permits one of the
// key usages.
func SigningCertificateKeyUsage(cert *diag.CertificateToken, usage x509.KeyUsage) Check {
	return Check{
		Name:      ConstraintSigningCertificateKeyUsage,
		Message:   "BBB_XCV_KEY_USAGE",
		Predicate: func() bool { return cert != nil && cert.KeyUsage()&usage != 0 },
		Failure:   Failure{Indeterminate, ChainConstraintsFailure},
		Info: func() string {
			if cert == nil {
				return ""
			}
			return fmt.Sprintf("key usage %b, expected any of %b", cert.KeyUsage(), usage)
		},
	}
}

// CertificateValidity checks that the certificate is valid at the given
// time. An expired certificate still passes if the object has a proof of
// existence within the validity period of the certificate.
func CertificateValidity(cert *diag.CertificateToken, at time.Time, poes *poe.Registry,
	objectID string) Check {

	var info string
	return Check{
		Name:    ConstraintCertificateValidity,
		Message: "BBB_XCV_CERTIFICATE_VALIDITY",
		Predicate: func() bool {
			if cert == nil {
				return false
			}
			v := cert.Validity()
			if !at.Before(v.NotBefore) && !at.After(v.NotAfter) {
				return true
			}
			if at.After(v.NotAfter) && poes != nil {
				if p, ok := poes.LatestWithin(objectID, v); ok {
					info = fmt.Sprintf("expired at %s, proof of existence at %s",
						v.NotAfter.Format(time.RFC3339), p.Time().Format(time.RFC3339))
					return true
				}
			}
			info = fmt.Sprintf("%s not within [%s, %s]", at.Format(time.RFC3339),
				v.NotBefore.Format(time.RFC3339), v.NotAfter.Format(time.RFC3339))
			return false
		},
		Failure: Failure{Indeterminate, OutOfBoundsNoPOE},
		Info:    func() string { return info },
	}
}

// RevocationDataAvailable checks that revocation evidence with a known
// status was selected for the certificate.
func RevocationDataAvailable(cert *diag.CertificateToken, tok *revocation.Token) Check {
	return Check{
		Name:    ConstraintRevocationDataAvailable,
		Message: "BBB_XCV_REVOCATION_DATA_AVAILABLE",
		Predicate: func() bool {
			return cert != nil && tok != nil && tok.Status(cert.SerialNumber()).Status != revocation.Unknown
		},
		Failure: Failure{Indeterminate, TryLater},
		Info: func() string {
			if tok == nil {
				return "no revocation data"
			}
			return tok.String()
		},
	}
}

// CertificateNotRevoked checks that the token does not report the
// certificate as revoked. A revoked certificate still passes if the object
// has a proof of existence before the revocation time. Without token there
// is nothing to check against, availability is RevocationDataAvailable's
// concern.
func CertificateNotRevoked(cert *diag.CertificateToken, tok *revocation.Token, poes *poe.Registry,
	objectID string, ca bool) Check {

	failure := Failure{Indeterminate, RevokedNoPOE}
	if ca {
		failure.SubIndication = RevokedCANoPOE
	}
	var info string
	return Check{
		Name:    ConstraintCertificateNotRevoked,
		Message: "BBB_XCV_CERTIFICATE_NOT_REVOKED",
		Predicate: func() bool {
			if cert == nil || tok == nil {
				return true
			}
			e := tok.Status(cert.SerialNumber())
			if e.Status != revocation.Revoked {
				return true
			}
			info = fmt.Sprintf("revoked at %s, reason %d", e.RevocationTime.Format(time.RFC3339), e.Reason)
			if poes != nil {
				if p, ok := poes.Earliest(objectID); ok && p.Time().Before(e.RevocationTime) {
					info += fmt.Sprintf(", proof of existence at %s", p.Time().Format(time.RFC3339))
					return true
				}
			}
			return false
		},
		Failure: failure,
		Info:    func() string { return info },
	}
}

// RevocationFreshness checks that the validation time lies within the
// [thisUpdate, nextUpdate] window of the token.
func RevocationFreshness(tok *revocation.Token, at time.Time) Check {
	return Check{
		Name:      ConstraintRevocationFreshness,
		Message:   "BBB_XCV_REVOCATION_FRESHNESS",
		Predicate: func() bool { return tok != nil && tok.FreshAt(at) },
		Failure:   Failure{Indeterminate, TryLater},
		Info: func() string {
			if tok == nil {
				return ""
			}
			if tok.NextUpdate.IsZero() {
				return fmt.Sprintf("this update %s", tok.ThisUpdate.Format(time.RFC3339))
			}
			return fmt.Sprintf("this update %s, next update %s",
				tok.ThisUpdate.Format(time.RFC3339), tok.NextUpdate.Format(time.RFC3339))
		},
	}
}
