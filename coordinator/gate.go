package coordinator

import (
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
)

// validName constrains participant names to word characters so they are
// safe to embed in checkpoint filenames.
var validName = regexp.MustCompile(`^\w+$`)

// GatePolicy configures admission control for a run.
type GatePolicy struct {
	// MinParticipants keeps the registration window open until at least
	// this many participants are alive.
	MinParticipants int
	// MaxParticipants closes the window as soon as this many participants
	// are alive.
	MaxParticipants int
	// RegistrationWait keeps the window open for stragglers as long as the
	// last registration is at most this recent.
	RegistrationWait time.Duration
	// Blacklist lists addresses that are always denied.
	Blacklist []string
	// Whitelist lists the only addresses admitted when UseWhitelist is set.
	Whitelist []string
	// UseWhitelist enables whitelist enforcement.
	UseWhitelist bool
}

// Gate admits participants while the registration window is open and
// decides when it closes.
//
// The window starts open and closes for good the first time a model is
// granted. While open, it stays open until the minimum participant count
// is met and either the maximum is reached or no new participant has
// arrived within the configured wait period.
type Gate struct {
	registry *Registry
	log      *slog.Logger

	minParticipants  int
	maxParticipants  int
	registrationWait time.Duration

	denied       map[string]struct{}
	allowed      map[string]struct{}
	enforceAllow bool

	closed           atomic.Bool
	lastRegistration atomic.Time

	// admitMu serializes admissions so concurrent registrations of the
	// same participant cannot create duplicates.
	admitMu sync.Mutex
}

// NewGate creates a gate admitting into registry under the given policy.
func NewGate(policy GatePolicy, registry *Registry, log *slog.Logger) *Gate {
	g := &Gate{
		registry:         registry,
		log:              log,
		minParticipants:  policy.MinParticipants,
		maxParticipants:  policy.MaxParticipants,
		registrationWait: policy.RegistrationWait,
		denied:           make(map[string]struct{}, len(policy.Blacklist)),
		allowed:          make(map[string]struct{}, len(policy.Whitelist)),
		enforceAllow:     policy.UseWhitelist,
	}
	for _, addr := range policy.Blacklist {
		g.denied[addr] = struct{}{}
	}
	for _, addr := range policy.Whitelist {
		g.allowed[addr] = struct{}{}
	}
	return g
}

// VerifyAddr applies the address policy: the blacklist always wins, and
// with whitelist enforcement enabled only listed addresses pass.
func (g *Gate) VerifyAddr(addr string) bool {
	if _, bad := g.denied[addr]; bad {
		return false
	}
	if g.enforceAllow {
		_, ok := g.allowed[addr]
		return ok
	}
	return true
}

// Admit registers a participant and returns its session token. When the
// same name and address are already registered the existing token is
// returned, so re-registration after a connection loss is idempotent.
func (g *Gate) Admit(name, addr string) (string, error) {
	if !validName.MatchString(name) {
		return "", fmt.Errorf("%w: name may only contain alphanumeric characters and underscores", ErrAuthentication)
	}
	if !g.VerifyAddr(addr) {
		return "", fmt.Errorf("%w: address is not allowed", ErrAuthentication)
	}

	g.admitMu.Lock()
	defer g.admitMu.Unlock()

	if p, ok := g.registry.Match(name, addr); ok {
		return p.Token, nil
	}
	if !g.Open() {
		return "", fmt.Errorf("%w: registration is closed", ErrAuthentication)
	}

	p := newParticipant(name, addr, uuid.New().String())
	g.registry.Insert(p)
	g.lastRegistration.Store(time.Now())

	g.log.Info("participant authenticated", "participant", p.String(), "alive", g.registry.AliveCount())
	return p.Token, nil
}

// Open reports whether the registration window still accepts newcomers.
func (g *Gate) Open() bool {
	if g.closed.Load() {
		return false
	}

	alive := g.registry.AliveCount()
	if alive < g.minParticipants {
		return true
	}
	return alive < g.maxParticipants && time.Since(g.lastRegistration.Load()) < g.registrationWait
}

// Shut closes the registration window. Closing is monotonic; there is no
// reopening.
func (g *Gate) Shut() {
	if !g.closed.Swap(true) {
		g.log.Info("registration closed", "participants", g.registry.Len())
	}
}

// Closed reports whether the window has been shut.
func (g *Gate) Closed() bool {
	return g.closed.Load()
}
