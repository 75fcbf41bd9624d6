package coordinator

import (
	"fmt"
	"sync"
	"time"
)

// RoundStatus tracks a participant's progress through the current round.
type RoundStatus int

const (
	// StatusIdle means the participant has not requested the current
	// round's model.
	StatusIdle RoundStatus = iota
	// StatusRequested means a model was granted and training is assumed
	// to be in progress.
	StatusRequested
	// StatusSubmitted means the checkpoint for the current round has been
	// received.
	StatusSubmitted
)

func (s RoundStatus) String() string {
	switch s {
	case StatusRequested:
		return "requested"
	case StatusSubmitted:
		return "submitted"
	default:
		return "idle"
	}
}

// Participant is one registered training client.
//
// Round and Status are guarded by the Coordinator's round lock. The
// heartbeat timestamp has its own mutex so liveness updates never contend
// with round coordination.
type Participant struct {
	Name  string
	Addr  string
	Token string

	Round  int
	Status RoundStatus

	mu            sync.Mutex
	lastHeartbeat time.Time
}

func newParticipant(name, addr, token string) *Participant {
	return &Participant{
		Name:          name,
		Addr:          addr,
		Token:         token,
		lastHeartbeat: time.Now(),
	}
}

func (p *Participant) beat(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastHeartbeat = now
}

// Alive reports whether the participant heartbeated within timeout.
func (p *Participant) Alive(timeout time.Duration, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return now.Sub(p.lastHeartbeat) < timeout
}

func (p *Participant) String() string {
	return fmt.Sprintf("%s|%s", p.Name, p.Addr)
}
