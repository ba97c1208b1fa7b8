package bbb

import (
	"github.com/fancl20/sigval/pkg/policy"
)

// Levels resolves the level of a named constraint.
type Levels interface {
	Level(name string) policy.Level
}

// Check is one entry of a chain.
type Check struct {
	// Name is the constraint name the level is looked up by.
	Name string
	// Message is the key of the produced result, Name if empty.
	Message string
	// Predicate reports whether the check passes.
	Predicate func() bool
	// Failure is the conclusion if the check fails at FAIL level.
	Failure Failure
	// Info optionally describes the outcome.
	Info func() string
	// Children optionally returns nested results.
	Children func() []*Result
}

func (c Check) message() string {
	if c.Message != "" {
		return c.Message
	}
	return c.Name
}

// Chain is an ordered list of checks.
type Chain []Check

// Run executes the chain. Checks at IGNORE level are not executed. The first
// failing check at FAIL level stops the chain and its failure becomes the
// conclusion. Failures at WARN and INFORM level are recorded and the chain
// continues. A nil levels treats every check as FAIL level.
func (c Chain) Run(levels Levels) (Conclusion, []*Result) {
	conclusion := Conclusion{Indication: Passed}
	results := make([]*Result, 0, len(c))
	for _, check := range c {
		level := policy.Fail
		if levels != nil {
			level = levels.Level(check.Name)
		}
		if level == policy.Ignore {
			results = append(results, &Result{Name: check.message(), Status: StatusIgnored})
			continue
		}
		r := &Result{Name: check.message(), Status: StatusOK}
		ok := check.Predicate()
		if check.Info != nil {
			r.AdditionalInfo = check.Info()
		}
		if check.Children != nil {
			r.Children = check.Children()
		}
		results = append(results, r)
		if ok {
			continue
		}
		msg := Message{Key: r.Name, Value: r.AdditionalInfo}
		switch level {
		case policy.Warn:
			r.Status = StatusWarning
			conclusion.Warnings = append(conclusion.Warnings, msg)
		case policy.Inform:
			r.Status = StatusInformation
			conclusion.Infos = append(conclusion.Infos, msg)
		default:
			r.Status = StatusNotOK
			conclusion.Indication = check.Failure.Indication
			conclusion.SubIndication = check.Failure.SubIndication
			return conclusion, results
		}
	}
	return conclusion, results
}

// Verdict runs the chain and wraps its outcome for the token.
func (c Chain) Verdict(tokenID string, kind Kind, levels Levels) *Verdict {
	conclusion, results := c.Run(levels)
	return &Verdict{
		TokenID:    tokenID,
		Kind:       kind,
		Conclusion: conclusion,
		Results:    results,
	}
}
