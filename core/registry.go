package core

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// Registry tracks the Requesters sharing a Mailbox and hands out their ids.
// Ids are positive, distinct, and never equal to SentinelID.
type Registry struct {
	// Map of requester id to Requester
	requesters sync.Map // map[int]*Requester

	// Counter for generating unique ids
	idCounter int64
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// NextID generates the next available requester id, starting at 1.
func (r *Registry) NextID() int {
	for {
		id := int(atomic.AddInt64(&r.idCounter, 1))
		if _, taken := r.requesters.Load(id); !taken {
			return id
		}
	}
}

// Register adds a Requester. It rejects nil, non-positive and duplicate ids.
func (r *Registry) Register(req *Requester) error {
	if req == nil {
		return fmt.Errorf("cannot register nil requester")
	}

	id := req.ID()
	if id <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidID, id)
	}
	if _, exists := r.requesters.LoadOrStore(id, req); exists {
		return fmt.Errorf("%w: %d", ErrDuplicateID, id)
	}

	return nil
}

// List returns all registered Requesters ordered by id.
func (r *Registry) List() []*Requester {
	var out []*Requester

	r.requesters.Range(func(key, value interface{}) bool {
		out = append(out, value.(*Requester))
		return true
	})

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Len returns the number of registered Requesters.
func (r *Registry) Len() int {
	n := 0
	r.requesters.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}
