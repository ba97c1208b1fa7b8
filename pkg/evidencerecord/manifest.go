package evidencerecord

import (
	"bytes"
	"crypto"
	"path"

	"github.com/fancl20/sigval/pkg/diag"
)

// File name patterns of evidence records in signature containers.
const (
	ManifestPattern      = "META-INF/ASiCEvidenceRecordManifest*.xml"
	RecordPatternERS     = "META-INF/evidencerecord*.ers"
	RecordPatternXML     = "META-INF/evidencerecord*.xml"
	DefaultManifestName  = "META-INF/ASiCEvidenceRecordManifest001.xml"
	DefaultRecordNameERS = "META-INF/evidencerecord001.ers"
	DefaultRecordNameXML = "META-INF/evidencerecord001.xml"
)

// Entry is a manifest entry: a document name and its digest.
type Entry struct {
	Name   string
	Digest []byte
}

// Manifest describes the documents an evidence record of a container
// covers.
type Manifest struct {
	Name            string
	DigestAlgorithm crypto.Hash
	// RecordName is the name of the evidence record the manifest refers to.
	RecordName string
	Entries    []Entry
}

// NewManifest builds a manifest over docs. Every document must carry a digest
// for the algorithm.
func NewManifest(name, recordName string, h crypto.Hash, docs []diag.Document) (*Manifest, error) {
	m := &Manifest{Name: name, RecordName: recordName, DigestAlgorithm: h}
	for _, d := range docs {
		digest, ok := d.Digest(h)
		if !ok {
			return nil, newError(KindNotFound, d.Name,
				"no %s digest for document '%s'", h, d.Name)
		}
		m.Entries = append(m.Entries, Entry{Name: d.Name, Digest: digest})
	}
	return m, nil
}

// Entry returns the entry for the named document.
func (m *Manifest) Entry(name string) (Entry, bool) {
	for _, e := range m.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// ValidateNames checks the file names of a manifest and of the evidence
// record it refers to against the container naming convention.
func ValidateNames(manifestName, recordName string) error {
	if ok, _ := path.Match(ManifestPattern, manifestName); !ok {
		return newError(KindNamingViolation, manifestName,
			"manifest name '%s' does not match '%s'", manifestName, ManifestPattern)
	}
	ers, _ := path.Match(RecordPatternERS, recordName)
	xml, _ := path.Match(RecordPatternXML, recordName)
	if !ers && !xml {
		return newError(KindNamingViolation, recordName,
			"evidence record name '%s' does not match '%s' or '%s'",
			recordName, RecordPatternERS, RecordPatternXML)
	}
	return nil
}

// ValidateManifest checks that m is a valid manifest for the evidence
// record. The names must follow the naming convention, the digest
// algorithms must agree, and every supplied document and every document the
// record covers must be covered by an entry with a matching digest.
func ValidateManifest(m *Manifest, er *diag.EvidenceRecord, docs []diag.Document) error {
	if err := ValidateNames(m.Name, er.Name); err != nil {
		return err
	}
	if m.RecordName != "" && m.RecordName != er.Name {
		return newError(KindNotFound, er.Name,
			"manifest refers to evidence record '%s', not '%s'", m.RecordName, er.Name)
	}
	if m.DigestAlgorithm != er.DigestAlgorithm {
		return newError(KindDigestMismatch, m.DigestAlgorithm.String(),
			"manifest digest algorithm %s does not match evidence record digest algorithm %s",
			m.DigestAlgorithm, er.DigestAlgorithm)
	}
	for _, d := range docs {
		e, ok := m.Entry(d.Name)
		if !ok {
			return newError(KindNotFound, d.Name, "document '%s' not covered", d.Name)
		}
		if digest, ok := d.Digest(m.DigestAlgorithm); ok && !bytes.Equal(digest, e.Digest) {
			return newError(KindDigestMismatch, d.Name,
				"digest of document '%s' does not match manifest entry", d.Name)
		}
	}
	for _, ref := range er.References {
		if ref.Type != diag.ArchiveObject || ref.DocumentName == "" {
			continue
		}
		if _, ok := m.Entry(ref.DocumentName); !ok {
			return newError(KindNotFound, ref.DocumentName,
				"document '%s' not covered", ref.DocumentName)
		}
	}
	return nil
}
