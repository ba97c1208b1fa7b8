package bbb

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/fancl20/sigval/pkg/diag"
)

// Constraint names as used in policies.
const (
	ConstraintReferenceDataFound         = "ReferenceDataFound"
	ConstraintReferenceDataIntact        = "ReferenceDataIntact"
	ConstraintReferenceNameMatch         = "ReferenceNameMatch"
	ConstraintManifestEntriesFound       = "ManifestEntriesFound"
	ConstraintEvidenceRecordDataGroup    = "EvidenceRecordDataGroup"
	ConstraintHashTreeRenewal            = "HashTreeRenewal"
	ConstraintTLevelTimestamp            = "TLevelTimestamp"
	ConstraintSigningCertificateFound    = "SigningCertificateFound"
	ConstraintTrustAnchorReached         = "TrustAnchorReached"
	ConstraintSigningCertificateKeyUsage = "SigningCertificateKeyUsage"
	ConstraintCertificateValidity        = "CertificateValidity"
	ConstraintRevocationDataAvailable    = "RevocationDataAvailable"
	ConstraintCertificateNotRevoked      = "CertificateNotRevoked"
	ConstraintRevocationFreshness        = "RevocationFreshness"
)

type referenceRule struct {
	found, intact               string
	foundFailure, intactFailure Failure
}

var (
	notFound = Failure{Indeterminate, SignedDataNotFound}
	broken   = Failure{Failed, HashFailure}
)

var referenceRules = map[diag.ReferenceType]referenceRule{
	diag.MessageImprint: {
		found:         "BBB_CV_MESSAGE_IMPRINT_FOUND",
		intact:        "BBB_CV_MESSAGE_IMPRINT_INTACT",
		foundFailure:  notFound,
		intactFailure: broken,
	},
	diag.ManifestEntry: {
		found:         "BBB_CV_MANIFEST_ENTRY_FOUND",
		intact:        "BBB_CV_MANIFEST_ENTRY_INTACT",
		foundFailure:  notFound,
		intactFailure: broken,
	},
	diag.ArchiveObject: {
		found:         "BBB_CV_ER_ARCHIVE_OBJECT_FOUND",
		intact:        "BBB_CV_ER_ARCHIVE_OBJECT_INTACT",
		foundFailure:  notFound,
		intactFailure: broken,
	},
	diag.ArchiveTimestampReference: {
		found:         "BBB_CV_ER_ARCHIVE_TIMESTAMP_FOUND",
		intact:        "BBB_CV_ER_ARCHIVE_TIMESTAMP_INTACT",
		foundFailure:  notFound,
		intactFailure: broken,
	},
	diag.MasterSignature: {
		found:         "BBB_CV_ER_MASTER_SIGNATURE_FOUND",
		intact:        "BBB_CV_ER_MASTER_SIGNATURE_INTACT",
		foundFailure:  notFound,
		intactFailure: broken,
	},
	diag.CounterSignatureValue: {
		found:         "BBB_CV_COUNTER_SIGNATURE_VALUE_FOUND",
		intact:        "BBB_CV_COUNTER_SIGNATURE_VALUE_INTACT",
		foundFailure:  Failure{Failed, FormatFailure},
		intactFailure: broken,
	},
}

var defaultReferenceRule = referenceRule{
	found:         "BBB_CV_REFERENCE_DATA_FOUND",
	intact:        "BBB_CV_REFERENCE_DATA_INTACT",
	foundFailure:  notFound,
	intactFailure: broken,
}

func ruleFor(t diag.ReferenceType) referenceRule {
	if r, ok := referenceRules[t]; ok {
		return r
	}
	return defaultReferenceRule
}

func describe(dm diag.DigestMatcher) string {
	name := objectIdentity(dm)
	return fmt.Sprintf("%s reference '%s'", dm.Type, name)
}

// ReferenceDataFound checks that the referenced data of dm was found.
func ReferenceDataFound(dm diag.DigestMatcher) Check {
	r := ruleFor(dm.Type)
	return Check{
		Name:      ConstraintReferenceDataFound,
		Message:   r.found,
		Predicate: func() bool { return dm.Found },
		Failure:   r.foundFailure,
		Info:      func() string { return describe(dm) },
	}
}

// ReferenceDataIntact checks that the referenced data of dm matches its
// digest.
func ReferenceDataIntact(dm diag.DigestMatcher) Check {
	r := ruleFor(dm.Type)
	return Check{
		Name:      ConstraintReferenceDataIntact,
		Message:   r.intact,
		Predicate: func() bool { return dm.Intact },
		Failure:   r.intactFailure,
		Info:      func() string { return describe(dm) },
	}
}

// ReferenceChecks returns the found and intact checks of every matcher. The
// intact check only applies to found references, absent data is never a hash
// failure. Orphan references are left to EvidenceRecordDataGroup and absent
// manifest entries to ManifestEntriesFound.
func ReferenceChecks(dms []diag.DigestMatcher) Chain {
	var c Chain
	for _, dm := range dms {
		switch dm.Type {
		case diag.OrphanReference:
			continue
		case diag.ManifestEntry:
		default:
			c = append(c, ReferenceDataFound(dm))
		}
		if dm.Found {
			c = append(c, ReferenceDataIntact(dm))
		}
	}
	return c
}

// ReferenceNameMatch checks that the declared URI of dm is the name of the
// document it was resolved to.
func ReferenceNameMatch(dm diag.DigestMatcher, documentName string) Check {
	return Check{
		Name:      ConstraintReferenceNameMatch,
		Message:   "BBB_CV_REFERENCE_NAME_MATCH",
		Predicate: func() bool { return dm.URI == documentName },
		Failure:   notFound,
		Info: func() string {
			return fmt.Sprintf("reference '%s' resolved to document '%s'", dm.URI, documentName)
		},
	}
}

// ManifestEntriesFound checks that at least one manifest entry was found.
func ManifestEntriesFound(dms []diag.DigestMatcher) Check {
	total, found := 0, 0
	for _, dm := range dms {
		if dm.Type != diag.ManifestEntry {
			continue
		}
		total++
		if dm.Found {
			found++
		}
	}
	msg := "BBB_CV_MANIFEST_ENTRIES_FOUND"
	if total == 0 {
		msg = "BBB_CV_MANIFEST_ENTRIES_NONE"
	}
	return Check{
		Name:      ConstraintManifestEntriesFound,
		Message:   msg,
		Predicate: func() bool { return found > 0 },
		Failure:   notFound,
		Info: func() string {
			if total == 0 {
				return "no manifest entries"
			}
			return fmt.Sprintf("%d of %d manifest entries found", found, total)
		},
	}
}

// EvidenceRecordDataGroup checks that no first level reference of an
// evidence record is an orphan reference.
func EvidenceRecordDataGroup(refs []diag.DigestMatcher) Check {
	var orphans []string
	for _, dm := range refs {
		if dm.Type == diag.OrphanReference {
			orphans = append(orphans, objectIdentity(dm))
		}
	}
	return Check{
		Name:      ConstraintEvidenceRecordDataGroup,
		Message:   "BBB_CV_ER_DATA_GROUP",
		Predicate: func() bool { return len(orphans) == 0 },
		Failure:   notFound,
		Info: func() string {
			if len(orphans) == 0 {
				return ""
			}
			return "orphan references: " + strings.Join(orphans, ", ")
		},
	}
}

// HashTreeRenewal checks that the renewal timestamp cur covers every archive
// data object covered by the preceding timestamp prev. If cur covers objects
// prev did not the renewal broke the hash tree and fails with HASH_FAILURE,
// otherwise the missing coverage is SIGNED_DATA_NOT_FOUND.
func HashTreeRenewal(prev, cur *diag.TimestampToken) Check {
	before, after := archiveObjects(prev), archiveObjects(cur)
	missing := difference(before, after)
	added := difference(after, before)
	failure := notFound
	if len(added) > 0 {
		failure = broken
	}
	return Check{
		Name:      ConstraintHashTreeRenewal,
		Message:   "BBB_ER_HASH_TREE_RENEWAL",
		Predicate: func() bool { return len(missing) == 0 },
		Failure:   failure,
		Info: func() string {
			if len(missing) == 0 {
				return ""
			}
			info := fmt.Sprintf("timestamp '%s' does not cover %s", cur.ID, strings.Join(missing, ", "))
			if len(added) > 0 {
				info += fmt.Sprintf(" but covers %s", strings.Join(added, ", "))
			}
			return info
		},
	}
}

func archiveObjects(ts *diag.TimestampToken) map[string]struct{} {
	objects := make(map[string]struct{})
	if ts == nil {
		return objects
	}
	for _, dm := range ts.DigestMatchers {
		if dm.Type == diag.ArchiveObject || dm.Type == diag.OrphanReference {
			objects[objectIdentity(dm)] = struct{}{}
		}
	}
	return objects
}

// difference returns the sorted elements of a not in b.
func difference(a, b map[string]struct{}) []string {
	var d []string
	for id := range a {
		if _, ok := b[id]; !ok {
			d = append(d, id)
		}
	}
	sort.Strings(d)
	return d
}

// objectIdentity identifies the object a matcher references: the resolved
// document, the declared reference, or the digest itself.
func objectIdentity(dm diag.DigestMatcher) string {
	switch {
	case dm.DocumentName != "":
		return dm.DocumentName
	case dm.URI != "":
		return dm.URI
	case dm.Name != "":
		return dm.Name
	default:
		return hex.EncodeToString(dm.Digest)
	}
}
