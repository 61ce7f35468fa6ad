// Package registry tracks which live transport currently answers for each
// logical device id.
//
// TVs and emulators register under a client-supplied id; mobiles may
// register too but usually do not need to. The registry is the only place
// that maps an id back to a transport, so every router operation that
// addresses a device by id goes through Resolve.
//
// Collisions are last-write-wins: a second register under the same id
// silently replaces the handle of the first. The replaced transport is not
// closed and stays connected but unaddressable until it disconnects or
// registers again.
package registry

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// Kind discriminates the three device families sharing one registry.
type Kind string

const (
	KindTV       Kind = "tv"
	KindMobile   Kind = "mobile"
	KindEmulator Kind = "emulator"
)

// ParseKind maps a wire string onto a Kind. Matching is case-insensitive.
func ParseKind(s string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindTV:
		return KindTV, true
	case KindMobile:
		return KindMobile, true
	case KindEmulator:
		return KindEmulator, true
	}
	return "", false
}

// Sentinel errors.
var (
	ErrNotFound  = errors.New("registration not found")
	ErrInvalidID = errors.New("logical id is required")
)

// Handle is a live transport the registry can hand out.
// Send must never block; it reports false when the message was dropped.
type Handle interface {
	ID() string
	Send(event string, payload interface{}) bool
}

// Registration is a snapshot of one registry entry.
type Registration struct {
	Kind        Kind
	LogicalID   string
	Handle      Handle
	DisplayName string
	Meta        map[string]string
	FirstSeenAt time.Time
	LastSeenAt  time.Time
}

// Config holds registry options.
type Config struct {
	// TimeNow is the clock used for FirstSeenAt/LastSeenAt (defaults to time.Now).
	TimeNow func() time.Time
}

// Registry is the connection registry. Each exported method is atomic with
// respect to the others; nothing spans two calls.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Registration
	timeNow func() time.Time
}

// New creates an empty registry.
func New(cfg Config) *Registry {
	if cfg.TimeNow == nil {
		cfg.TimeNow = time.Now
	}
	return &Registry{
		entries: make(map[string]*Registration),
		timeNow: cfg.TimeNow,
	}
}

// Register binds logicalID to handle, replacing any previous binding.
// Re-registering the same handle under the same id keeps FirstSeenAt.
func (r *Registry) Register(kind Kind, logicalID string, handle Handle, displayName string, meta map[string]string) (Registration, error) {
	logicalID = strings.TrimSpace(logicalID)
	if logicalID == "" {
		return Registration{}, ErrInvalidID
	}

	now := r.timeNow()
	entry := &Registration{
		Kind:        kind,
		LogicalID:   logicalID,
		Handle:      handle,
		DisplayName: displayName,
		Meta:        copyMeta(meta),
		FirstSeenAt: now,
		LastSeenAt:  now,
	}

	r.mu.Lock()
	if prev, ok := r.entries[logicalID]; ok && prev.Handle == handle {
		entry.FirstSeenAt = prev.FirstSeenAt
	}
	r.entries[logicalID] = entry
	snap := entry.snapshot()
	r.mu.Unlock()

	return snap, nil
}

// Resolve returns the current registration for logicalID.
func (r *Registry) Resolve(logicalID string) (Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[logicalID]
	if !ok {
		return Registration{}, ErrNotFound
	}
	return entry.snapshot(), nil
}

// RemoveByHandle drops every entry currently owned by handle and returns
// the removed registrations. Entries that were overwritten by a newer
// handle are not touched. Calling it again for the same handle is a no-op.
func (r *Registry) RemoveByHandle(handle Handle) []Registration {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []Registration
	for id, entry := range r.entries {
		if entry.Handle == handle {
			removed = append(removed, entry.snapshot())
			delete(r.entries, id)
		}
	}
	sortByID(removed)
	return removed
}

// Touch refreshes LastSeenAt on every entry owned by handle and returns
// the logical ids that were refreshed.
func (r *Registry) Touch(handle Handle) []string {
	now := r.timeNow()

	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, entry := range r.entries {
		if entry.Handle == handle {
			entry.LastSeenAt = now
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// IDsForHandle returns the logical ids currently owned by handle.
func (r *Registry) IDsForHandle(handle Handle) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, entry := range r.entries {
		if entry.Handle == handle {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ListAll returns snapshots of every registration of the given kind, or of
// all kinds when kind is empty. Results are ordered by logical id.
func (r *Registry) ListAll(kind Kind) []Registration {
	r.mu.Lock()
	out := make([]Registration, 0, len(r.entries))
	for _, entry := range r.entries {
		if kind == "" || entry.Kind == kind {
			out = append(out, entry.snapshot())
		}
	}
	r.mu.Unlock()

	sortByID(out)
	return out
}

// Count returns the number of registrations of the given kind, or of all
// kinds when kind is empty.
func (r *Registry) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if kind == "" {
		return len(r.entries)
	}
	n := 0
	for _, entry := range r.entries {
		if entry.Kind == kind {
			n++
		}
	}
	return n
}

// snapshot copies the entry so callers never share the Meta map with the
// registry. Must be called with r.mu held.
func (e *Registration) snapshot() Registration {
	s := *e
	s.Meta = copyMeta(e.Meta)
	return s
}

func copyMeta(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortByID(regs []Registration) {
	sort.Slice(regs, func(i, j int) bool { return regs[i].LogicalID < regs[j].LogicalID })
}
