package poe

import (
	"sort"
	"sync"
	"time"

	"github.com/scionproto/scion/pkg/scrypto/cppki"

	"github.com/fancl20/sigval/pkg/diag"
)

// Registry collects the POEs established during one validation run. It is
// safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	poes map[string][]POE
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{poes: make(map[string][]POE)}
}

// Add registers p for the object.
func (r *Registry) Add(objectID string, p POE) error {
	if p.IsZero() {
		return ErrNoAnchorTime
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.poes[objectID] = append(r.poes[objectID], p)
	return nil
}

// AddTimestamp registers a POE anchored to ts for every object ts covers and
// for ts itself.
func (r *Registry) AddTimestamp(ts *diag.TimestampToken) error {
	p, err := NewTimestamp(ts)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.poes[ts.ID] = append(r.poes[ts.ID], p)
	for id := range p.covered {
		r.poes[id] = append(r.poes[id], p)
	}
	return nil
}

// All returns the POEs of the object ordered such that no POE is preceded by
// one it is before.
func (r *Registry) All(objectID string) []POE {
	r.mu.RLock()
	all := append([]POE(nil), r.poes[objectID]...)
	r.mu.RUnlock()
	// Sorting by time and covered set size is a linear extension of Before.
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].time.Equal(all[j].time) {
			return all[i].time.Before(all[j].time)
		}
		return len(all[i].covered) < len(all[j].covered)
	})
	return all
}

// Earliest returns the earliest POE of the object.
func (r *Registry) Earliest(objectID string) (POE, bool) {
	all := r.All(objectID)
	if len(all) == 0 {
		return POE{}, false
	}
	return all[0], true
}

// ExistsAt reports whether the object has a POE no later than t.
func (r *Registry) ExistsAt(objectID string, t time.Time) bool {
	p, ok := r.Earliest(objectID)
	return ok && !p.time.After(t)
}

// LatestWithin returns the latest POE of the object inside the validity
// period.
func (r *Registry) LatestWithin(objectID string, v cppki.Validity) (POE, bool) {
	all := r.All(objectID)
	for i := len(all) - 1; i >= 0; i-- {
		if t := all[i].time; !t.Before(v.NotBefore) && !t.After(v.NotAfter) {
			return all[i], true
		}
	}
	return POE{}, false
}
