// Package poe models proofs of existence: claims that an object existed no
// later than a given time.
package poe

import (
	"errors"
	"time"

	"github.com/fancl20/sigval/pkg/diag"
)

// ErrNoAnchorTime indicates a POE without anchor time.
var ErrNoAnchorTime = errors.New("proof of existence requires an anchor time")

// POE is an immutable proof of existence. It is anchored either to a control
// time or to a timestamp token.
type POE struct {
	time      time.Time
	timestamp *diag.TimestampToken
	// covered holds the ids of the objects covered by the anchoring
	// timestamp.
	covered map[string]struct{}
}

// NewControlTime creates a POE anchored to a literal time, typically the
// validation time.
func NewControlTime(t time.Time) (POE, error) {
	if t.IsZero() {
		return POE{}, ErrNoAnchorTime
	}
	return POE{time: t}, nil
}

// NewTimestamp creates a POE anchored to the production time of ts.
func NewTimestamp(ts *diag.TimestampToken) (POE, error) {
	if ts == nil || ts.ProductionTime.IsZero() {
		return POE{}, ErrNoAnchorTime
	}
	covered := make(map[string]struct{}, len(ts.CoveredObjects))
	for _, o := range ts.CoveredObjects {
		covered[o.ID] = struct{}{}
	}
	return POE{time: ts.ProductionTime, timestamp: ts, covered: covered}, nil
}

// Time returns the anchor time.
func (p POE) Time() time.Time {
	return p.time
}

// Timestamp returns the anchoring timestamp, nil for control time POEs.
func (p POE) Timestamp() *diag.TimestampToken {
	return p.timestamp
}

// IsZero reports whether p was not created by one of the constructors.
func (p POE) IsZero() bool {
	return p.time.IsZero()
}

// Before reports whether a is strictly before b.
//
// Times are compared first. At equal time, a timestamp anchored POE is before
// another one iff the objects it covers are a strict subset of the objects
// the other covers. Equal, disjoint and partially overlapping sets are
// incomparable, as are equal times with a control time anchor. The timestamp
// type never breaks a tie.
func Before(a, b POE) bool {
	if !a.time.Equal(b.time) {
		return a.time.Before(b.time)
	}
	if a.timestamp == nil || b.timestamp == nil {
		return false
	}
	return strictSubset(a.covered, b.covered)
}

func strictSubset(a, b map[string]struct{}) bool {
	if len(a) >= len(b) {
		return false
	}
	for id := range a {
		if _, ok := b[id]; !ok {
			return false
		}
	}
	return true
}
