// Package evidencerecord computes the objects covered by evidence records
// and validates evidence record manifests of signature containers.
package evidencerecord

import (
	"github.com/scionproto/scion/pkg/private/serrors"

	"github.com/fancl20/sigval/pkg/diag"
)

// Resolve computes the scopes covered by the references of an evidence
// record. Found archive object references resolve to the single supplied
// document, or by document name if several documents are supplied. A name
// that matches no supplied document is an ErrNotFound failure. A
// master signature reference contributes the scopes of master if the
// reference is intact. Every scope is reported once.
//
// Resolve panics if refs contain a master signature reference but master is
// nil.
func Resolve(refs []diag.DigestMatcher, docs []diag.Document,
	master *diag.Signature) ([]diag.SignatureScope, error) {

	var s scopes
	for i, ref := range refs {
		switch ref.Type {
		case diag.ArchiveObject:
			if !ref.Found {
				continue
			}
			name, err := documentName(ref, docs)
			if err != nil {
				return nil, serrors.Wrap("resolving archive object", err, "index", i)
			}
			s.add(diag.SignatureScope{Name: name, DocumentName: name, Kind: diag.FullScope})
		case diag.MasterSignature:
			if master == nil {
				panic("master signature reference without master signature")
			}
			if ref.Found && ref.Intact {
				s.add(master.Scopes...)
			}
		}
	}
	return s.list, nil
}

// ResolveEmbedded computes the scopes covered by the evidence record. An
// embedded record inherits the scopes of its master signature through its
// intact master signature reference. Master signatures carry resolved scopes,
// so there is no further level to follow.
//
// ResolveEmbedded panics if the record is embedded and master is nil or is
// not the master signature of the record.
func ResolveEmbedded(er *diag.EvidenceRecord, docs []diag.Document,
	master *diag.Signature) ([]diag.SignatureScope, error) {

	if er.Embedded {
		if master == nil {
			panic("embedded evidence record without master signature")
		}
		if er.MasterSignatureID != "" && er.MasterSignatureID != master.ID {
			panic("evidence record embedded in " + er.MasterSignatureID + ", got " + master.ID)
		}
	}
	return Resolve(er.References, docs, master)
}

func documentName(ref diag.DigestMatcher, docs []diag.Document) (string, error) {
	if len(docs) == 1 {
		return docs[0].Name, nil
	}
	if ref.DocumentName == "" {
		return "", ErrAmbiguousDocument
	}
	for _, d := range docs {
		if d.Name == ref.DocumentName {
			return d.Name, nil
		}
	}
	return "", newError(KindNotFound, ref.DocumentName,
		"document '%s' not supplied", ref.DocumentName)
}

type scopeKey struct {
	name, document string
	kind           diag.ScopeKind
}

// scopes is an insertion ordered set of scopes.
type scopes struct {
	list []diag.SignatureScope
	seen map[scopeKey]struct{}
}

func (s *scopes) mark(sc diag.SignatureScope) bool {
	if s.seen == nil {
		s.seen = make(map[scopeKey]struct{})
	}
	k := scopeKey{name: sc.Name, document: sc.DocumentName, kind: sc.Kind}
	if _, ok := s.seen[k]; ok {
		return false
	}
	s.seen[k] = struct{}{}
	return true
}

func (s *scopes) add(scs ...diag.SignatureScope) {
	for _, sc := range scs {
		if s.mark(sc) {
			s.list = append(s.list, sc)
		}
	}
}
