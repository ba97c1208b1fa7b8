package revocation

import (
	"github.com/scionproto/scion/pkg/log"

	"github.com/fancl20/sigval/pkg/diag"
)

// Source selects revocation evidence for a certificate. A nil token without
// error means the source holds no evidence for the certificate.
type Source interface {
	Revocation(cert, issuer *diag.CertificateToken) (*Token, error)
}

// CRLSource selects the freshest CRL that covers a certificate within its
// validity period.
type CRLSource struct {
	binaries []diag.RevocationBinary
	cache    *Cache
	memo     *memo
	logger   log.Logger
}

// NewCRLSource creates a source over the CRL binaries. Binaries of other
// kinds are ignored.
func NewCRLSource(binaries []diag.RevocationBinary, c *Cache, logger log.Logger) *CRLSource {
	return &CRLSource{
		binaries: filter(binaries, diag.CRL),
		cache:    c,
		memo:     c.newMemo(),
		logger:   orRoot(logger),
	}
}

// Revocation returns the CRL with the greatest thisUpdate among the CRLs that
// are signed by issuer and whose [thisUpdate, nextUpdate] window intersects
// the validity of cert.
func (s *CRLSource) Revocation(cert, issuer *diag.CertificateToken) (*Token, error) {
	key := cert.ID() + "/" + issuer.ID()
	if tok, ok := s.memo.get(key); ok {
		return tok, nil
	}

	var best *Token
	validity := cert.Validity()
	for _, bin := range s.binaries {
		tok, err := s.cache.token(parseKey{binaryID: bin.ID(), issuerID: issuer.ID()},
			bin, cert, issuer, parseCRL)
		if err != nil {
			s.logger.Debug("Skipping CRL candidate", "err", err)
			continue
		}
		if !tok.SignatureValid {
			s.logger.Debug("Skipping CRL candidate with invalid signature",
				"id", tok.ID, "issuer", issuer.ID())
			continue
		}
		if !tok.Intersects(validity) {
			continue
		}
		if best == nil || tok.ThisUpdate.After(best.ThisUpdate) {
			best = tok
		}
	}
	s.memo.set(key, best)
	return best, nil
}

// OCSPSource selects the freshest OCSP response produced for a certificate.
type OCSPSource struct {
	binaries []diag.RevocationBinary
	cache    *Cache
	memo     *memo
	logger   log.Logger
}

// NewOCSPSource creates a source over the OCSP binaries. Binaries of other
// kinds are ignored.
func NewOCSPSource(binaries []diag.RevocationBinary, c *Cache, logger log.Logger) *OCSPSource {
	return &OCSPSource{
		binaries: filter(binaries, diag.OCSP),
		cache:    c,
		memo:     c.newMemo(),
		logger:   orRoot(logger),
	}
}

// Revocation returns the valid response for cert with the greatest
// producedAt. Ties are broken by thisUpdate.
func (s *OCSPSource) Revocation(cert, issuer *diag.CertificateToken) (*Token, error) {
	key := cert.ID() + "/" + issuer.ID()
	if tok, ok := s.memo.get(key); ok {
		return tok, nil
	}

	var best *Token
	for _, bin := range s.binaries {
		tok, err := s.cache.token(
			parseKey{binaryID: bin.ID(), subjectID: cert.ID(), issuerID: issuer.ID()},
			bin, cert, issuer, parseOCSP)
		if err != nil {
			s.logger.Debug("Skipping OCSP candidate", "err", err)
			continue
		}
		if best == nil || fresher(tok, best) {
			best = tok
		}
	}
	s.memo.set(key, best)
	return best, nil
}

func fresher(a, b *Token) bool {
	if !a.ProducedAt.Equal(b.ProducedAt) {
		return a.ProducedAt.After(b.ProducedAt)
	}
	return a.ThisUpdate.After(b.ThisUpdate)
}

func filter(binaries []diag.RevocationBinary, kind diag.RevocationKind) []diag.RevocationBinary {
	var r []diag.RevocationBinary
	for _, b := range binaries {
		if b.Kind == kind {
			r = append(r, b)
		}
	}
	return r
}

func orRoot(logger log.Logger) log.Logger {
	if logger == nil {
		return log.Root()
	}
	return logger
}
