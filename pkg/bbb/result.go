package bbb

// Message is a recorded warning or information.
type Message struct {
	Key   string
	Value string
}

// Result is the outcome of one executed constraint.
type Result struct {
	// Name is the message key of the constraint.
	Name           string
	Status         Status
	AdditionalInfo string
	Children       []*Result
}

// Conclusion is the outcome of a chain.
type Conclusion struct {
	Indication    Indication
	SubIndication SubIndication
	Warnings      []Message
	Infos         []Message
}

// Passed reports whether the conclusion is PASSED.
func (c Conclusion) Passed() bool {
	return c.Indication == Passed
}

// Kind is the kind of token a verdict is about.
type Kind string

const (
	KindSignature      Kind = "SIGNATURE"
	KindTimestamp      Kind = "TIMESTAMP"
	KindEvidenceRecord Kind = "EVIDENCE_RECORD"
	KindCertificate    Kind = "CERTIFICATE"
)

// Verdict is the final output for one token.
type Verdict struct {
	TokenID    string
	Kind       Kind
	Conclusion Conclusion
	Results    []*Result
}

// Aggregate composes verdicts into one conclusion. The worst indication wins
// (FAILED over INDETERMINATE over PASSED) and the sub-indication is the one of
// the first verdict with the worst indication. Warnings and infos are
// collected in verdict order. Without verdicts there is no signed data to
// conclude on.
func Aggregate(verdicts ...*Verdict) Conclusion {
	if len(verdicts) == 0 {
		return Conclusion{Indication: Indeterminate, SubIndication: SignedDataNotFound}
	}
	c := Conclusion{Indication: Passed}
	for _, v := range verdicts {
		if v.Conclusion.Indication.severity() > c.Indication.severity() {
			c.Indication = v.Conclusion.Indication
			c.SubIndication = v.Conclusion.SubIndication
		}
		c.Warnings = append(c.Warnings, v.Conclusion.Warnings...)
		c.Infos = append(c.Infos, v.Conclusion.Infos...)
	}
	return c
}

// Walk calls fn for every result in depth first order.
func Walk(results []*Result, fn func(*Result)) {
	for _, r := range results {
		fn(r)
		Walk(r.Children, fn)
	}
}
