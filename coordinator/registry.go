package coordinator

import (
	"fmt"
	"sync"
	"time"

	"github.com/nims-federated-learning/NIMS-FL/metrics"
)

// Registry is the authoritative set of registered participants. Membership
// has its own lock so token validation and liveness accounting never
// contend with round coordination.
type Registry struct {
	heartbeatTimeout time.Duration

	mu      sync.RWMutex
	byToken map[string]*Participant
	order   []*Participant
}

// NewRegistry creates an empty registry. Participants that have not
// heartbeated within heartbeatTimeout fail validation and stop counting
// towards the registration window.
func NewRegistry(heartbeatTimeout time.Duration) *Registry {
	return &Registry{
		heartbeatTimeout: heartbeatTimeout,
		byToken:          make(map[string]*Participant),
	}
}

// Match returns the participant registered under the given name and
// address, if any.
func (r *Registry) Match(name, addr string) (*Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.order {
		if p.Name == name && p.Addr == addr {
			return p, true
		}
	}
	return nil, false
}

// Insert adds a new participant. Registration order is preserved; it is
// the order aggregation visits checkpoints in.
func (r *Registry) Insert(p *Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byToken[p.Token] = p
	r.order = append(r.order, p)
	metrics.ParticipantsRegistered.Set(float64(len(r.order)))
}

// Remove unregisters the participant holding token.
func (r *Registry) Remove(token string) (*Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byToken[token]
	if !ok {
		return nil, false
	}
	delete(r.byToken, token)
	for i, q := range r.order {
		if q == p {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	metrics.ParticipantsRegistered.Set(float64(len(r.order)))
	return p, true
}

// Validate resolves token to a participant and authenticates the caller.
// The token must exist, the request must originate from the registered
// address and the participant must have heartbeated within the timeout.
func (r *Registry) Validate(token, addr string) (*Participant, error) {
	r.mu.RLock()
	p, ok := r.byToken[token]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: token is invalid", ErrAuthentication)
	}
	if p.Addr != addr {
		return nil, fmt.Errorf("%w: token is bound to a different address", ErrAuthentication)
	}
	if !p.Alive(r.heartbeatTimeout, time.Now()) {
		return nil, fmt.Errorf("%w: heartbeat expired", ErrAuthentication)
	}
	return p, nil
}

// Heartbeat refreshes the liveness timestamp of the participant holding
// token. A participant whose heartbeat already expired cannot revive
// itself; it has to re-register.
func (r *Registry) Heartbeat(token, addr string) error {
	p, err := r.Validate(token, addr)
	if err != nil {
		return err
	}
	p.beat(time.Now())
	return nil
}

// AliveCount reports how many registered participants currently pass the
// heartbeat check.
func (r *Registry) AliveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	alive := 0
	for _, p := range r.order {
		if p.Alive(r.heartbeatTimeout, now) {
			alive++
		}
	}
	return alive
}

// Len reports the number of registered participants, dead or alive.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Participants returns a snapshot of all registered participants in
// registration order.
func (r *Registry) Participants() []*Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Participant, len(r.order))
	copy(out, r.order)
	return out
}
