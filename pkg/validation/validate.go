package validation

import (
	"context"
	"time"

	"github.com/scionproto/scion/pkg/log"
	"github.com/scionproto/scion/pkg/metrics/v2"
	"github.com/scionproto/scion/pkg/private/serrors"
	"golang.org/x/sync/errgroup"

	"github.com/fancl20/sigval/pkg/bbb"
	"github.com/fancl20/sigval/pkg/certpool"
	"github.com/fancl20/sigval/pkg/diag"
	"github.com/fancl20/sigval/pkg/evidencerecord"
	"github.com/fancl20/sigval/pkg/poe"
	"github.com/fancl20/sigval/pkg/revocation"
)

// maxChainLength bounds the certificate chains built from the pool.
const maxChainLength = 10

// defaultSource is used for snapshot certificates without a source.
var defaultSource = certpool.Source{Name: "snapshot", Kind: diag.SourceUnknown}

// Report is the outcome of validating one snapshot.
type Report struct {
	// Verdicts holds the verdicts of all timestamps, signatures and evidence
	// records, in this order.
	Verdicts []*bbb.Verdict
	// Conclusion aggregates the verdicts of the signatures, the evidence
	// records and the timestamps not attached to a signature.
	Conclusion bbb.Conclusion
	// Scopes holds the resolved scopes per evidence record id.
	Scopes map[string][]diag.SignatureScope
}

// Verdict returns the verdict of the token.
func (r *Report) Verdict(tokenID string) (*bbb.Verdict, bool) {
	for _, v := range r.Verdicts {
		if v.TokenID == tokenID {
			return v, true
		}
	}
	return nil, false
}

// Validate validates the snapshot. Snapshot certificates are registered in
// the shared pool. Timestamps are validated first, those that pass establish
// proofs of existence for the objects they cover. Signatures and evidence
// records follow.
//
// An error is only returned for inputs that cannot be validated at all, such
// as evidence records whose scope cannot be resolved.
func (c *Context) Validate(ctx context.Context, s *diag.Snapshot) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := log.FromCtx(ctx)
	r := &run{
		Context:  c,
		snapshot: s,
		logger:   logger,
		at:       s.ValidationTime,
		poes:     poe.NewRegistry(),
		report:   &Report{Scopes: make(map[string][]diag.SignatureScope)},
	}
	if r.at.IsZero() {
		r.at = time.Now()
	}
	r.selector = revocation.NewSelector(s.Revocations, c.cache, c.order,
		revocation.WithLogger(logger), revocation.WithMetrics(c.metrics.Revocation))

	r.registerCertificates()
	if err := r.establishControlTime(); err != nil {
		return nil, err
	}

	timestamps := make(map[string]*bbb.Verdict, len(s.Timestamps))
	for i := range s.Timestamps {
		v := r.timestamp(&s.Timestamps[i])
		timestamps[v.TokenID] = v
	}
	for i := range s.EvidenceRecords {
		r.renewalTimestamps(&s.EvidenceRecords[i])
	}

	attached := make(map[string]struct{})
	var top []*bbb.Verdict
	for i := range s.Signatures {
		sig := &s.Signatures[i]
		var tsVerdicts []*bbb.Verdict
		for _, id := range sig.Timestamps {
			attached[id] = struct{}{}
			if v, ok := timestamps[id]; ok {
				tsVerdicts = append(tsVerdicts, v)
			}
		}
		v := r.signature(sig, tsVerdicts)
		top = append(top, v)
	}
	for i := range s.EvidenceRecords {
		v, err := r.evidenceRecord(&s.EvidenceRecords[i])
		if err != nil {
			return nil, err
		}
		top = append(top, v)
	}
	for i := range s.Timestamps {
		if _, ok := attached[s.Timestamps[i].ID]; !ok {
			top = append(top, timestamps[s.Timestamps[i].ID])
		}
	}

	r.report.Conclusion = bbb.Aggregate(top...)
	logger.Debug("Validated snapshot", "verdicts", len(r.report.Verdicts),
		"indication", r.report.Conclusion.Indication,
		"sub_indication", r.report.Conclusion.SubIndication)
	return r.report, nil
}

// ValidateAll validates the snapshots in parallel. The reports are in the
// order of the snapshots. The first error cancels the remaining
// validations.
func (c *Context) ValidateAll(ctx context.Context, snapshots []*diag.Snapshot) ([]*Report, error) {
	reports := make([]*Report, len(snapshots))
	g, gctx := errgroup.WithContext(ctx)
	if c.parallelism > 0 {
		g.SetLimit(c.parallelism)
	}
	for i, s := range snapshots {
		g.Go(func() error {
			r, err := c.Validate(gctx, s)
			if err != nil {
				return serrors.Wrap("validating snapshot", err, "index", i)
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// run is the state of one validation run.
type run struct {
	*Context
	snapshot *diag.Snapshot
	logger   log.Logger
	at       time.Time
	poes     *poe.Registry
	selector revocation.Source
	report   *Report
}

func (r *run) registerCertificates() {
	for _, sc := range r.snapshot.Certificates {
		if len(sc.Sources) == 0 {
			r.pool.Register(sc.Certificate, defaultSource)
			continue
		}
		for _, src := range sc.Sources {
			r.pool.Register(sc.Certificate, src)
		}
	}
}

// establishControlTime registers the validation time as proof of existence
// of every token of the snapshot.
func (r *run) establishControlTime() error {
	control, err := poe.NewControlTime(r.at)
	if err != nil {
		return err
	}
	var ids []string
	for _, sig := range r.snapshot.Signatures {
		ids = append(ids, sig.ID)
	}
	for _, ts := range r.snapshot.Timestamps {
		ids = append(ids, ts.ID)
	}
	for _, er := range r.snapshot.EvidenceRecords {
		ids = append(ids, er.ID)
	}
	for _, id := range ids {
		if err := r.poes.Add(id, control); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) verdict(tokenID string, kind bbb.Kind, chain bbb.Chain) *bbb.Verdict {
	v := chain.Verdict(tokenID, kind, r.policy)
	if r.metrics.Verdicts != nil {
		metrics.CounterInc(r.metrics.Verdicts(string(kind), string(v.Conclusion.Indication)))
	}
	r.logger.Debug("Validated token", "id", tokenID, "kind", kind,
		"indication", v.Conclusion.Indication, "sub_indication", v.Conclusion.SubIndication)
	r.report.Verdicts = append(r.report.Verdicts, v)
	return v
}

func (r *run) timestamp(ts *diag.TimestampToken) *bbb.Verdict {
	chain := bbb.ReferenceChecks(ts.DigestMatchers)
	chain = append(chain, r.certificateChecks(ts.SigningCertificateID, ts.ID)...)
	v := r.verdict(ts.ID, bbb.KindTimestamp, chain)
	if qualifies(v, r.allow) {
		if err := r.poes.AddTimestamp(ts); err != nil {
			r.logger.Debug("Ignoring timestamp without production time", "id", ts.ID, "err", err)
		}
	}
	return v
}

// renewalTimestamps registers the hash tree renewal timestamps of er whose
// references are found and intact as proofs of existence.
func (r *run) renewalTimestamps(er *diag.EvidenceRecord) {
	for i := range er.Timestamps {
		ts := &er.Timestamps[i]
		v := bbb.ReferenceChecks(ts.DigestMatchers).Verdict(ts.ID, bbb.KindTimestamp, r.policy)
		if !v.Conclusion.Passed() {
			r.logger.Debug("Ignoring renewal timestamp with broken references",
				"evidence_record", er.ID, "id", ts.ID, "sub_indication", v.Conclusion.SubIndication)
			continue
		}
		if err := r.poes.AddTimestamp(ts); err != nil {
			r.logger.Debug("Ignoring renewal timestamp without production time",
				"evidence_record", er.ID, "id", ts.ID, "err", err)
		}
	}
}

func (r *run) signature(sig *diag.Signature, timestamps []*bbb.Verdict) *bbb.Verdict {
	chain := bbb.ReferenceChecks(sig.DigestMatchers)
	if hasType(sig.DigestMatchers, diag.ManifestEntry) {
		chain = append(chain, bbb.ManifestEntriesFound(sig.DigestMatchers))
	}
	for _, dm := range sig.DigestMatchers {
		if dm.Found && dm.URI != "" && dm.DocumentName != "" {
			chain = append(chain, bbb.ReferenceNameMatch(dm, dm.DocumentName))
		}
	}
	chain = append(chain, r.certificateChecks(sig.SigningCertificateID, sig.ID)...)
	chain = append(chain, bbb.TLevelTimestamp(timestamps, r.allow))
	return r.verdict(sig.ID, bbb.KindSignature, chain)
}

func (r *run) evidenceRecord(er *diag.EvidenceRecord) (*bbb.Verdict, error) {
	var master *diag.Signature
	if er.Embedded || hasType(er.References, diag.MasterSignature) {
		sig, ok := r.snapshot.Signature(er.MasterSignatureID)
		if !ok {
			return nil, serrors.New("master signature not found",
				"evidence_record", er.ID, "master", er.MasterSignatureID)
		}
		master = sig
	}
	scopes, err := evidencerecord.ResolveEmbedded(er, r.snapshot.Documents, master)
	if err != nil {
		return nil, serrors.Wrap("resolving evidence record scope", err, "evidence_record", er.ID)
	}
	r.report.Scopes[er.ID] = scopes

	chain := bbb.ReferenceChecks(er.References)
	chain = append(chain, bbb.EvidenceRecordDataGroup(er.References))
	for i := range er.Timestamps {
		chain = append(chain, bbb.ReferenceChecks(er.Timestamps[i].DigestMatchers)...)
		if i > 0 {
			chain = append(chain, bbb.HashTreeRenewal(&er.Timestamps[i-1], &er.Timestamps[i]))
		}
	}
	return r.verdict(er.ID, bbb.KindEvidenceRecord, chain), nil
}

// certificateChecks returns the checks of the signing certificate and its
// chain. objectID is the token the certificate signed, its proofs of
// existence allow past validation of expired or revoked certificates.
func (r *run) certificateChecks(certID, objectID string) bbb.Chain {
	var cert *diag.CertificateToken
	if certID != "" {
		if c, ok := r.snapshot.Certificate(certID); ok {
			cert = c
		} else if e, ok := r.pool.Entity(certID); ok {
			cert = e.Certificate
		}
	}
	chain := r.chain(cert)
	checks := bbb.Chain{
		bbb.SigningCertificateFound(cert),
		bbb.TrustAnchorReached(chain, r.pool.IsTrusted),
		bbb.SigningCertificateKeyUsage(cert, r.keyUsage),
		bbb.CertificateValidity(cert, r.at, r.poes, objectID),
	}
	for i := 0; i+1 < len(chain); i++ {
		subject, issuer := chain[i], chain[i+1]
		if r.pool.IsTrusted(subject) {
			break
		}
		tok, err := r.selector.Revocation(subject, issuer)
		if err != nil {
			r.logger.Info("Revocation selection failed", "cert", subject.ID(), "err", err)
			tok = nil
		}
		checks = append(checks,
			bbb.RevocationDataAvailable(subject, tok),
			bbb.CertificateNotRevoked(subject, tok, r.poes, objectID, i > 0),
			bbb.RevocationFreshness(tok, r.at),
		)
	}
	return checks
}

// chain builds the certificate chain of cert from the pool, ending at a
// trusted or self-signed certificate.
func (r *run) chain(cert *diag.CertificateToken) []*diag.CertificateToken {
	if cert == nil {
		return nil
	}
	chain := []*diag.CertificateToken{cert}
	for cur := cert; len(chain) < maxChainLength; {
		if r.pool.IsTrusted(cur) || cur.IsSelfSigned() {
			break
		}
		issuers := r.pool.Issuers(cur)
		if len(issuers) == 0 {
			break
		}
		next := issuers[0].Certificate
		for _, e := range issuers {
			if e.Trusted() {
				next = e.Certificate
				break
			}
		}
		chain = append(chain, next)
		cur = next
	}
	return chain
}

func qualifies(v *bbb.Verdict, allow []bbb.SubIndication) bool {
	switch v.Conclusion.Indication {
	case bbb.Passed:
		return true
	case bbb.Indeterminate:
		for _, s := range allow {
			if s == v.Conclusion.SubIndication {
				return true
			}
		}
	}
	return false
}

func hasType(dms []diag.DigestMatcher, t diag.ReferenceType) bool {
	for _, dm := range dms {
		if dm.Type == t {
			return true
		}
	}
	return false
}
