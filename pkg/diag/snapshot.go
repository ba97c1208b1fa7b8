package diag

import "time"

// Snapshot is the complete set of facts collected for one validation run.
type Snapshot struct {
	ValidationTime  time.Time
	Certificates    []SourcedCertificate
	Revocations     []RevocationBinary
	Signatures      []Signature
	Timestamps      []TimestampToken
	EvidenceRecords []EvidenceRecord
	Documents       []Document
}

// Certificate looks up a certificate by id.
func (s *Snapshot) Certificate(id string) (*CertificateToken, bool) {
	for _, c := range s.Certificates {
		if c.Certificate.ID() == id {
			return c.Certificate, true
		}
	}
	return nil, false
}

// Timestamp looks up a detached or signature timestamp by id.
func (s *Snapshot) Timestamp(id string) (*TimestampToken, bool) {
	for i := range s.Timestamps {
		if s.Timestamps[i].ID == id {
			return &s.Timestamps[i], true
		}
	}
	return nil, false
}

// Signature looks up a signature by id.
func (s *Snapshot) Signature(id string) (*Signature, bool) {
	for i := range s.Signatures {
		if s.Signatures[i].ID == id {
			return &s.Signatures[i], true
		}
	}
	return nil, false
}

// EvidenceRecord looks up an evidence record by id.
func (s *Snapshot) EvidenceRecord(id string) (*EvidenceRecord, bool) {
	for i := range s.EvidenceRecords {
		if s.EvidenceRecords[i].ID == id {
			return &s.EvidenceRecords[i], true
		}
	}
	return nil, false
}
