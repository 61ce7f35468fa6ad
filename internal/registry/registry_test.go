package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeHandle struct {
	id string
}

func (h *fakeHandle) ID() string                                 { return h.id }
func (h *fakeHandle) Send(event string, payload interface{}) bool { return true }

func newTestRegistry(now *time.Time) *Registry {
	return New(Config{TimeNow: func() time.Time { return *now }})
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in     string
		want   Kind
		wantOK bool
	}{
		{"tv", KindTV, true},
		{"TV", KindTV, true},
		{" mobile ", KindMobile, true},
		{"emulator", KindEmulator, true},
		{"fridge", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseKind(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseKind(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestRegister_LastWriteWins(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newTestRegistry(&now)

	handles := []*fakeHandle{{id: "a"}, {id: "b"}, {id: "c"}}
	for _, h := range handles {
		if _, err := r.Register(KindTV, "tv-1", h, "", nil); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	reg, err := r.Resolve("tv-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if reg.Handle != handles[2] {
		t.Errorf("Resolve returned handle %s, want c", reg.Handle.ID())
	}
	if r.Count(KindTV) != 1 {
		t.Errorf("Count(tv) = %d, want 1", r.Count(KindTV))
	}
}

func TestRegister_RejectsEmptyID(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newTestRegistry(&now)

	_, err := r.Register(KindTV, "  ", &fakeHandle{id: "a"}, "", nil)
	if !errors.Is(err, ErrInvalidID) {
		t.Fatalf("Register with blank id: err = %v, want ErrInvalidID", err)
	}
	if r.Count("") != 0 {
		t.Error("blank id should not create an entry")
	}
}

func TestRegister_SameHandleKeepsFirstSeen(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newTestRegistry(&now)
	h := &fakeHandle{id: "a"}

	r.Register(KindEmulator, "emu-1", h, "Pixel", nil)
	now = now.Add(time.Minute)
	reg, _ := r.Register(KindEmulator, "emu-1", h, "Pixel 8", nil)

	if !reg.FirstSeenAt.Equal(time.Unix(1000, 0)) {
		t.Errorf("FirstSeenAt = %v, want original", reg.FirstSeenAt)
	}
	if !reg.LastSeenAt.Equal(now) {
		t.Errorf("LastSeenAt = %v, want %v", reg.LastSeenAt, now)
	}
	if reg.DisplayName != "Pixel 8" {
		t.Errorf("DisplayName = %q, want Pixel 8", reg.DisplayName)
	}
}

func TestResolve_NotFound(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newTestRegistry(&now)

	if _, err := r.Resolve("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(missing) err = %v, want ErrNotFound", err)
	}
}

func TestRemoveByHandle(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newTestRegistry(&now)
	a := &fakeHandle{id: "a"}
	b := &fakeHandle{id: "b"}

	r.Register(KindTV, "tv-1", a, "", nil)
	r.Register(KindTV, "tv-2", a, "", nil)
	r.Register(KindTV, "tv-3", b, "", nil)

	removed := r.RemoveByHandle(a)
	if len(removed) != 2 || removed[0].LogicalID != "tv-1" || removed[1].LogicalID != "tv-2" {
		t.Fatalf("RemoveByHandle(a) = %+v, want tv-1 and tv-2", removed)
	}
	if r.Count(KindTV) != 1 {
		t.Errorf("Count(tv) = %d, want 1", r.Count(KindTV))
	}

	// Second call for the same handle is a no-op.
	if again := r.RemoveByHandle(a); len(again) != 0 {
		t.Errorf("second RemoveByHandle = %+v, want empty", again)
	}
	if r.Count(KindTV) != 1 {
		t.Errorf("Count(tv) after repeat = %d, want 1", r.Count(KindTV))
	}
}

func TestRemoveByHandle_SkipsOverwrittenEntries(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newTestRegistry(&now)
	oldConn := &fakeHandle{id: "old"}
	newConn := &fakeHandle{id: "new"}

	r.Register(KindTV, "tv-1", oldConn, "", nil)
	r.Register(KindTV, "tv-1", newConn, "", nil)

	if removed := r.RemoveByHandle(oldConn); len(removed) != 0 {
		t.Fatalf("stale handle removed %+v", removed)
	}
	reg, err := r.Resolve("tv-1")
	if err != nil || reg.Handle != newConn {
		t.Errorf("tv-1 should still resolve to the new handle, got %+v err=%v", reg, err)
	}
}

func TestListAll_SnapshotIsolation(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newTestRegistry(&now)
	h := &fakeHandle{id: "a"}

	r.Register(KindEmulator, "emu-1", h, "Pixel", map[string]string{"androidVersion": "14"})
	list := r.ListAll(KindEmulator)
	if len(list) != 1 {
		t.Fatalf("ListAll len = %d, want 1", len(list))
	}

	list[0].Meta["androidVersion"] = "mutated"
	list[0].DisplayName = "mutated"

	fresh, _ := r.Resolve("emu-1")
	if fresh.Meta["androidVersion"] != "14" || fresh.DisplayName != "Pixel" {
		t.Errorf("registry leaked caller mutation: %+v", fresh)
	}

	r.RemoveByHandle(h)
	if list[0].LogicalID != "emu-1" {
		t.Error("snapshot changed after remove")
	}
}

func TestListAll_FiltersByKind(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newTestRegistry(&now)

	r.Register(KindTV, "tv-2", &fakeHandle{id: "1"}, "", nil)
	r.Register(KindTV, "tv-1", &fakeHandle{id: "2"}, "", nil)
	r.Register(KindEmulator, "emu-1", &fakeHandle{id: "3"}, "", nil)
	r.Register(KindMobile, "phone", &fakeHandle{id: "4"}, "", nil)

	tvs := r.ListAll(KindTV)
	if len(tvs) != 2 || tvs[0].LogicalID != "tv-1" || tvs[1].LogicalID != "tv-2" {
		t.Errorf("ListAll(tv) = %+v, want tv-1, tv-2", tvs)
	}
	if all := r.ListAll(""); len(all) != 4 {
		t.Errorf("ListAll(all) len = %d, want 4", len(all))
	}
	if r.Count(KindMobile) != 1 || r.Count(KindEmulator) != 1 || r.Count("") != 4 {
		t.Errorf("unexpected counts: mobile=%d emulator=%d all=%d",
			r.Count(KindMobile), r.Count(KindEmulator), r.Count(""))
	}
}

func TestTouch(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newTestRegistry(&now)
	h := &fakeHandle{id: "a"}

	r.Register(KindEmulator, "emu-1", h, "", nil)
	now = now.Add(30 * time.Second)

	ids := r.Touch(h)
	if len(ids) != 1 || ids[0] != "emu-1" {
		t.Fatalf("Touch = %v, want [emu-1]", ids)
	}
	reg, _ := r.Resolve("emu-1")
	if !reg.LastSeenAt.Equal(now) {
		t.Errorf("LastSeenAt = %v, want %v", reg.LastSeenAt, now)
	}
	if ids := r.Touch(&fakeHandle{id: "other"}); len(ids) != 0 {
		t.Errorf("Touch(unregistered) = %v, want empty", ids)
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := New(Config{})
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			h := &fakeHandle{id: fmt.Sprintf("h-%d", n)}
			id := fmt.Sprintf("tv-%d", n%5)
			r.Register(KindTV, id, h, "", nil)
			r.Resolve(id)
			r.ListAll(KindTV)
			r.Touch(h)
			r.RemoveByHandle(h)
		}(i)
	}
	wg.Wait()

	if n := r.Count(KindTV); n < 0 || n > 5 {
		t.Errorf("Count(tv) = %d, want 0..5", n)
	}
}
