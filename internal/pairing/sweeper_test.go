package pairing

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSweeper_RunOnce(t *testing.T) {
	s, clock := newTestStore(Config{})
	s.Create("tv-1", &fakeHandle{id: "m1"})
	s.Create("tv-1", &fakeHandle{id: "m2"})

	var got []Session
	sw := NewSweeper(s, SweeperConfig{
		Logger:    zerolog.Nop(),
		OnExpired: func(removed []Session) { got = removed },
	})

	if n := sw.RunOnce(); n != 0 {
		t.Errorf("RunOnce before expiry = %d", n)
	}
	if got != nil {
		t.Error("OnExpired should not fire when nothing expired")
	}

	clock.Advance(10 * time.Minute)
	if n := sw.RunOnce(); n != 2 {
		t.Errorf("RunOnce after expiry = %d, want 2", n)
	}
	if len(got) != 2 {
		t.Errorf("OnExpired got %d sessions, want 2", len(got))
	}
}

func TestSweeper_StartStop(t *testing.T) {
	s := NewStore(Config{TTL: time.Millisecond})
	s.Create("tv-1", &fakeHandle{id: "m1"})

	var mu sync.Mutex
	fired := make(chan struct{}, 1)
	sw := NewSweeper(s, SweeperConfig{
		Interval: time.Second,
		Logger:   zerolog.Nop(),
		OnExpired: func([]Session) {
			mu.Lock()
			defer mu.Unlock()
			select {
			case fired <- struct{}{}:
			default:
			}
		},
	})

	sw.Start()
	sw.Start() // no-op
	if !sw.IsRunning() {
		t.Fatal("sweeper should be running")
	}

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("sweeper did not run within 3s")
	}

	sw.Stop()
	if sw.IsRunning() {
		t.Error("sweeper should be stopped")
	}
	if s.Count() != 0 {
		t.Errorf("Count = %d, want 0", s.Count())
	}
	sw.Stop() // idempotent
}

func TestNewSweeper_DefaultInterval(t *testing.T) {
	sw := NewSweeper(NewStore(Config{}), SweeperConfig{})
	if sw.interval != DefaultSweepInterval {
		t.Errorf("interval = %v, want %v", sw.interval, DefaultSweepInterval)
	}
}

func TestSweeper_TicksDoNotOverlap(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for several sweep ticks")
	}

	s := NewStore(Config{TTL: time.Millisecond})
	s.Create("tv-1", &fakeHandle{id: "m1"})

	var (
		mu           sync.Mutex
		active, peak int
		sweeps       int
	)
	sw := NewSweeper(s, SweeperConfig{
		Interval: time.Second,
		Logger:   zerolog.Nop(),
		OnExpired: func([]Session) {
			// Keep an expired session waiting so every tick has work to do.
			s.Create("tv-1", &fakeHandle{id: "m2"})

			mu.Lock()
			active++
			sweeps++
			if active > peak {
				peak = active
			}
			mu.Unlock()

			time.Sleep(2500 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		},
	})

	sw.Start()
	time.Sleep(4500 * time.Millisecond)
	sw.Stop()

	mu.Lock()
	defer mu.Unlock()
	if sweeps == 0 {
		t.Fatal("no sweep ran")
	}
	if peak != 1 {
		t.Errorf("max concurrent sweeps = %d, want 1", peak)
	}
}
