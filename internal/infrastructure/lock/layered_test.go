package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type recordingLocker struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (r *recordingLocker) Lock(_ context.Context, key string) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.events = append(r.events, "lock "+key)
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, "unlock "+key)
	}, nil
}

func TestLayered_AcquiresBothAndReleasesBoth(t *testing.T) {
	local := NewKeyed()
	remote := &recordingLocker{}
	l := NewLayered(local, remote)

	unlock, err := l.Lock(context.Background(), "person:1")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if local.Len() != 1 {
		t.Fatalf("local lock not held")
	}
	unlock()

	if local.Len() != 0 {
		t.Fatalf("local lock not released")
	}
	if len(remote.events) != 2 || remote.events[1] != "unlock person:1" {
		t.Fatalf("unexpected remote events: %v", remote.events)
	}
}

func TestLayered_RemoteFailureReleasesLocal(t *testing.T) {
	local := NewKeyed()
	boom := errors.New("redis unavailable")
	l := NewLayered(local, &recordingLocker{err: boom})

	if _, err := l.Lock(context.Background(), "person:1"); !errors.Is(err, boom) {
		t.Fatalf("expected remote error, got %v", err)
	}
	if local.Len() != 0 {
		t.Fatalf("local lock leaked after remote failure")
	}
}
