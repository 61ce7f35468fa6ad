// Package pairing implements the mobile-to-TV pairing handshake.
//
// A mobile asks to pair with a TV; the relay mints a session and forwards
// the request to the TV, which accepts or rejects it. The relay never makes
// the decision itself. It only enforces two rules:
//
//   - A session is single use: the first accepted confirm wins and every
//     later confirm fails with ErrAlreadyUsed.
//   - An unconfirmed session dies after TTL (5 minutes by default) and is
//     from then on indistinguishable from one that never existed.
//
// Session state machine:
//
//	Requested --confirm(true)--> Confirmed (kept, used=true)
//	Requested --confirm(false)-> Rejected  (deleted)
//	Requested --cancel-------->  Cancelled (deleted)
//	Requested --TTL elapses--->  Expired   (deleted by the sweeper)
//
// Confirmed sessions are retained until cancelled unless ConfirmedTTL is set.
package pairing

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tvlink/relay/internal/registry"
)

// DefaultTTL is how long an unconfirmed pairing request stays valid.
const DefaultTTL = 5 * time.Minute

// Common errors for the pairing flow.
var (
	// ErrSessionNotFound is returned for unknown, expired, rejected or
	// cancelled sessions. Callers cannot tell these apart.
	ErrSessionNotFound = errors.New("pairing session not found")

	// ErrSessionExpired is returned alongside the snapshot of a session
	// that was past its deadline when touched and has now been deleted.
	// It matches ErrSessionNotFound under errors.Is.
	ErrSessionExpired = fmt.Errorf("%w: expired", ErrSessionNotFound)

	// ErrAlreadyUsed is returned when confirming a session that was
	// already accepted.
	ErrAlreadyUsed = errors.New("pairing session already used")
)

// Session is a snapshot of one pairing session.
type Session struct {
	ID        string
	TVID      string
	Requester registry.Handle
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool
	PairedAt  time.Time // zero until confirmed
}

// Expired reports whether an unconfirmed session is past its deadline.
func (s Session) Expired(now time.Time) bool {
	return !s.Used && s.ExpiresAt.Before(now)
}

// Config holds configuration for the session store.
type Config struct {
	// TTL is how long a pairing request waits for the TV.
	// Default: 5 minutes.
	TTL time.Duration

	// ConfirmedTTL, when positive, lets the sweeper drop confirmed
	// sessions this long after PairedAt. Zero keeps them until cancelled.
	ConfirmedTTL time.Duration

	// TimeNow returns the current time. Useful for testing.
	// Default: time.Now.
	TimeNow func() time.Time

	// NewID mints session ids. Default: random UUIDv4.
	NewID func() string
}

// Store owns every pairing session. Each method is one atomic step.
type Store struct {
	mu       sync.Mutex
	config   Config
	sessions map[string]*Session
}

// NewStore creates an empty session store with the given config.
func NewStore(config Config) *Store {
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if config.TimeNow == nil {
		config.TimeNow = time.Now
	}
	if config.NewID == nil {
		config.NewID = func() string { return uuid.New().String() }
	}
	return &Store{
		config:   config,
		sessions: make(map[string]*Session),
	}
}

// Now returns the store's clock reading.
func (s *Store) Now() time.Time {
	return s.config.TimeNow()
}

// TTL returns the configured request lifetime.
func (s *Store) TTL() time.Duration {
	return s.config.TTL
}

// Create mints a new Requested session for tvID on behalf of requester.
// The caller is responsible for checking that the TV is registered.
func (s *Store) Create(tvID string, requester registry.Handle) Session {
	now := s.config.TimeNow()
	sess := &Session{
		ID:        s.config.NewID(),
		TVID:      tvID,
		Requester: requester,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.TTL),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	return *sess
}

// Confirm applies the TV's decision to a session.
//
// accepted=true marks the session used and stamps PairedAt. accepted=false
// deletes it. Either way the resulting snapshot is returned so the caller
// can notify the requester.
func (s *Store) Confirm(id string, accepted bool) (Session, error) {
	now := s.config.TimeNow()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if sess.Used {
		return Session{}, ErrAlreadyUsed
	}
	if sess.Expired(now) {
		// Not swept yet, but already dead.
		delete(s.sessions, id)
		return *sess, ErrSessionExpired
	}

	if !accepted {
		delete(s.sessions, id)
		return *sess, nil
	}

	sess.Used = true
	sess.PairedAt = now
	return *sess, nil
}

// Cancel deletes a session and returns its snapshot. A missing session
// gives ErrSessionNotFound. An expired one is deleted and returned with
// ErrSessionExpired so the caller can record the expiry.
func (s *Store) Cancel(id string) (Session, error) {
	now := s.config.TimeNow()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	delete(s.sessions, id)
	if sess.Expired(now) {
		return *sess, ErrSessionExpired
	}
	return *sess, nil
}

// Get returns a snapshot of a live session.
func (s *Store) Get(id string) (Session, bool) {
	now := s.config.TimeNow()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || sess.Expired(now) {
		return Session{}, false
	}
	return *sess, true
}

// ExpireSessions removes every unused session whose ExpiresAt is before
// now, plus confirmed sessions older than ConfirmedTTL when that is set.
// The removed sessions are returned ordered by creation time.
func (s *Store) ExpireSessions(now time.Time) []Session {
	s.mu.Lock()
	var removed []Session
	for id, sess := range s.sessions {
		if sess.Expired(now) || s.confirmedStale(sess, now) {
			removed = append(removed, *sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	sort.Slice(removed, func(i, j int) bool { return removed[i].CreatedAt.Before(removed[j].CreatedAt) })
	return removed
}

// SweepExpired is ExpireSessions returning only the count.
func (s *Store) SweepExpired(now time.Time) int {
	return len(s.ExpireSessions(now))
}

// Count returns the number of sessions held, confirmed ones included.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ActiveForTV returns unconfirmed, unexpired sessions targeting tvID, oldest
// first. A TV that reconnects uses this to pick up requests it missed.
func (s *Store) ActiveForTV(tvID string) []Session {
	now := s.config.TimeNow()

	s.mu.Lock()
	var out []Session
	for _, sess := range s.sessions {
		if sess.TVID == tvID && !sess.Used && !sess.Expired(now) {
			out = append(out, *sess)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// confirmedStale must be called with s.mu held.
func (s *Store) confirmedStale(sess *Session, now time.Time) bool {
	if !sess.Used || s.config.ConfirmedTTL <= 0 {
		return false
	}
	return sess.PairedAt.Add(s.config.ConfirmedTTL).Before(now)
}
