// Package bbb implements the basic building blocks of signature validation: a
// policy parameterized chain of checks over the facts of one token that
// concludes with an indication and the tree of constraint results justifying
// it.
package bbb

// Indication is the coarse outcome of a validation.
type Indication string

const (
	Passed        Indication = "PASSED"
	Failed        Indication = "FAILED"
	Indeterminate Indication = "INDETERMINATE"
)

// severity orders indications, worst first wins.
func (i Indication) severity() int {
	switch i {
	case Failed:
		return 2
	case Indeterminate:
		return 1
	default:
		return 0
	}
}

// SubIndication refines a FAILED or INDETERMINATE indication.
type SubIndication string

const (
	FormatFailure                 SubIndication = "FORMAT_FAILURE"
	HashFailure                   SubIndication = "HASH_FAILURE"
	SigCryptoFailure              SubIndication = "SIG_CRYPTO_FAILURE"
	Revoked                       SubIndication = "REVOKED"
	SigConstraintsFailure         SubIndication = "SIG_CONSTRAINTS_FAILURE"
	ChainConstraintsFailure       SubIndication = "CHAIN_CONSTRAINTS_FAILURE"
	CertificateChainGeneral       SubIndication = "CERTIFICATE_CHAIN_GENERAL_FAILURE"
	CryptoConstraintsFailure      SubIndication = "CRYPTO_CONSTRAINTS_FAILURE"
	Expired                       SubIndication = "EXPIRED"
	NotYetValid                   SubIndication = "NOT_YET_VALID"
	PolicyProcessingError         SubIndication = "POLICY_PROCESSING_ERROR"
	SignedDataNotFound            SubIndication = "SIGNED_DATA_NOT_FOUND"
	NoSigningCertificateFound     SubIndication = "NO_SIGNING_CERTIFICATE_FOUND"
	NoCertificateChainFound       SubIndication = "NO_CERTIFICATE_CHAIN_FOUND"
	RevokedNoPOE                  SubIndication = "REVOKED_NO_POE"
	RevokedCANoPOE                SubIndication = "REVOKED_CA_NO_POE"
	OutOfBoundsNoPOE              SubIndication = "OUT_OF_BOUNDS_NO_POE"
	OutOfBoundsNotRevoked         SubIndication = "OUT_OF_BOUNDS_NOT_REVOKED"
	CryptoConstraintsFailureNoPOE SubIndication = "CRYPTO_CONSTRAINTS_FAILURE_NO_POE"
	NoPOE                         SubIndication = "NO_POE"
	TryLater                      SubIndication = "TRY_LATER"
	NoValidTimestamp              SubIndication = "NO_VALID_TIMESTAMP"
	TimestampOrderFailure         SubIndication = "TIMESTAMP_ORDER_FAILURE"
)

// PastValidationSubIndications are the INDETERMINATE sub-indications that a
// past signature validation may still resolve. They qualify a timestamp for
// the T-level by default.
var PastValidationSubIndications = []SubIndication{
	OutOfBoundsNoPOE,
	OutOfBoundsNotRevoked,
	RevokedNoPOE,
	RevokedCANoPOE,
	CryptoConstraintsFailureNoPOE,
	TryLater,
}

// Status is the status of one executed constraint.
type Status string

const (
	StatusOK          Status = "OK"
	StatusNotOK       Status = "NOT_OK"
	StatusWarning     Status = "WARNING"
	StatusInformation Status = "INFORMATION"
	StatusIgnored     Status = "IGNORED"
)

// Failure is the conclusion a failed FAIL level check sets.
type Failure struct {
	Indication    Indication
	SubIndication SubIndication
}

func (f Failure) String() string {
	if f.SubIndication == "" {
		return string(f.Indication)
	}
	return string(f.Indication) + "/" + string(f.SubIndication)
}
