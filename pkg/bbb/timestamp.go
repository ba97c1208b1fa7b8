package bbb

import (
	"strings"
)

// TLevelTimestamp checks that at least one of the timestamp verdicts
// qualifies for the T-level: it PASSED, or it is INDETERMINATE with one of
// the allowed sub-indications.
func TLevelTimestamp(verdicts []*Verdict, allow []SubIndication) Check {
	qualifies := func(v *Verdict) bool {
		switch v.Conclusion.Indication {
		case Passed:
			return true
		case Indeterminate:
			for _, s := range allow {
				if v.Conclusion.SubIndication == s {
					return true
				}
			}
		}
		return false
	}
	return Check{
		Name:    ConstraintTLevelTimestamp,
		Message: "BBB_SAV_T_LEVEL_TIMESTAMP",
		Predicate: func() bool {
			for _, v := range verdicts {
				if qualifies(v) {
					return true
				}
			}
			return false
		},
		Failure: Failure{Indeterminate, NoValidTimestamp},
		Info: func() string {
			var ids []string
			for _, v := range verdicts {
				if qualifies(v) {
					ids = append(ids, v.TokenID)
				}
			}
			if len(ids) == 0 {
				return "no qualifying timestamp"
			}
			return "qualifying timestamps: " + strings.Join(ids, ", ")
		},
		Children: func() []*Result {
			children := make([]*Result, 0, len(verdicts))
			for _, v := range verdicts {
				r := &Result{
					Name:           v.TokenID,
					Status:         StatusOK,
					AdditionalInfo: Failure{v.Conclusion.Indication, v.Conclusion.SubIndication}.String(),
				}
				if !qualifies(v) {
					r.Status = StatusNotOK
				}
				children = append(children, r)
			}
			return children
		},
	}
}
