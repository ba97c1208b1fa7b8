package diag

import (
	"crypto"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// RevocationKind distinguishes CRLs from OCSP responses.
type RevocationKind int

const (
	CRL RevocationKind = iota
	OCSP
)

func (k RevocationKind) String() string {
	if k == OCSP {
		return "OCSP"
	}
	return "CRL"
}

// RevocationOrigin tells where the revocation binary was collected from.
type RevocationOrigin int

const (
	// OriginEmbedded is revocation data embedded in the signature.
	OriginEmbedded RevocationOrigin = iota
	// OriginExternal is revocation data supplied by the caller.
	OriginExternal
	// OriginOnline is revocation data fetched online by an upstream collaborator.
	OriginOnline
)

func (o RevocationOrigin) String() string {
	switch o {
	case OriginEmbedded:
		return "embedded"
	case OriginExternal:
		return "external"
	case OriginOnline:
		return "online"
	default:
		return "unknown"
	}
}

// RevocationBinary is an unparsed CRL or OCSP response.
type RevocationBinary struct {
	Raw    []byte
	Kind   RevocationKind
	Origin RevocationOrigin
}

// ID returns the content derived identifier of the binary.
func (r RevocationBinary) ID() string {
	sum := sha256.Sum256(r.Raw)
	return "R-" + strings.ToUpper(hex.EncodeToString(sum[:]))
}

// TimestampType is the declared type of a timestamp token.
type TimestampType int

const (
	ContentTimestamp TimestampType = iota
	SignatureTimestamp
	ValidationDataTimestamp
	ArchiveTimestamp
	EvidenceRecordTimestamp
)

func (t TimestampType) String() string {
	switch t {
	case ContentTimestamp:
		return "CONTENT_TIMESTAMP"
	case SignatureTimestamp:
		return "SIGNATURE_TIMESTAMP"
	case ValidationDataTimestamp:
		return "VALIDATION_DATA_TIMESTAMP"
	case ArchiveTimestamp:
		return "ARCHIVE_TIMESTAMP"
	case EvidenceRecordTimestamp:
		return "EVIDENCE_RECORD_TIMESTAMP"
	default:
		return "UNKNOWN"
	}
}

// ObjectKind is the kind of object a timestamp or evidence record covers.
type ObjectKind int

const (
	ObjectDocument ObjectKind = iota
	ObjectSignature
	ObjectCertificate
	ObjectRevocation
	ObjectTimestamp
	ObjectEvidenceRecord
)

// CoveredObject identifies an object covered by a timestamp.
type CoveredObject struct {
	ID   string
	Kind ObjectKind
}

// TimestampToken is a parsed timestamp token.
type TimestampToken struct {
	ID                   string
	ProductionTime       time.Time
	Type                 TimestampType
	SigningCertificateID string
	DigestMatchers       []DigestMatcher
	CoveredObjects       []CoveredObject
}

// Covers reports whether the timestamp covers the object with the given id.
func (t *TimestampToken) Covers(id string) bool {
	for _, o := range t.CoveredObjects {
		if o.ID == id {
			return true
		}
	}
	return false
}

// ReferenceType is the type of a digest reference.
type ReferenceType int

const (
	MessageImprint ReferenceType = iota
	ManifestEntry
	ArchiveObject
	OrphanReference
	MasterSignature
	ArchiveTimestampReference
	CounterSignatureValue
	SignedProperties
	DataObject
)

func (t ReferenceType) String() string {
	switch t {
	case MessageImprint:
		return "MESSAGE_IMPRINT"
	case ManifestEntry:
		return "MANIFEST_ENTRY"
	case ArchiveObject:
		return "EVIDENCE_RECORD_ARCHIVE_OBJECT"
	case OrphanReference:
		return "EVIDENCE_RECORD_ORPHAN_REFERENCE"
	case MasterSignature:
		return "EVIDENCE_RECORD_MASTER_SIGNATURE"
	case ArchiveTimestampReference:
		return "EVIDENCE_RECORD_ARCHIVE_TIME_STAMP"
	case CounterSignatureValue:
		return "COUNTER_SIGNED_SIGNATURE_VALUE"
	case SignedProperties:
		return "SIGNED_PROPERTIES"
	case DataObject:
		return "DATA_OBJECT"
	default:
		return "UNKNOWN"
	}
}

// DigestMatcher is the outcome of checking a declared digest reference.
type DigestMatcher struct {
	Type ReferenceType
	// Name is the reference name (an id or a manifest entry name).
	Name string
	// URI is the declared URI of the referenced object.
	URI string
	// DocumentName is the name of the resolved document, empty when the
	// reference could not be resolved to a document.
	DocumentName    string
	DigestAlgorithm crypto.Hash
	Digest          []byte
	Found           bool
	Intact          bool
}

// Document is an original data object supplied next to the signature.
type Document struct {
	Name    string
	Digests map[crypto.Hash][]byte
}

// Digest returns the document digest for the given algorithm.
func (d Document) Digest(h crypto.Hash) ([]byte, bool) {
	v, ok := d.Digests[h]
	return v, ok
}

// ScopeKind describes what a signature scope covers.
type ScopeKind int

const (
	FullScope ScopeKind = iota
	PartialScope
	DigestScope
	ContainerScope
)

// SignatureScope is one object covered by a signature or evidence record.
type SignatureScope struct {
	Name         string
	DocumentName string
	Kind         ScopeKind
}

// Signature is a signature extracted from a container.
type Signature struct {
	ID                   string
	SigningCertificateID string
	ClaimedSigningTime   time.Time
	DigestMatchers       []DigestMatcher
	Scopes               []SignatureScope
	// Timestamps holds the ids of the timestamps attached to the signature.
	Timestamps []string
	// EvidenceRecords holds the ids of embedded evidence records.
	EvidenceRecords []string
}

// EvidenceRecord is a parsed evidence record.
type EvidenceRecord struct {
	ID              string
	Name            string
	DigestAlgorithm crypto.Hash
	// References are the first level digest references of the record.
	References []DigestMatcher
	// Timestamps holds the hash tree renewal chain, oldest first.
	Timestamps []TimestampToken
	// Embedded is set for evidence records embedded in a signature.
	Embedded          bool
	MasterSignatureID string
}
