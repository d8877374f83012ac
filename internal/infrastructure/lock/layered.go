package lock

import (
	"context"

	"github.com/waldorf/school-records/internal/core/ports"
)

// Layered takes the in-process lock first and the remote lock second, so
// writers in the same process queue locally instead of polling the remote store.
type Layered struct {
	local  *Keyed
	remote ports.AggregateLocker
}

func NewLayered(local *Keyed, remote ports.AggregateLocker) *Layered {
	return &Layered{local: local, remote: remote}
}

func (l *Layered) Lock(ctx context.Context, key string) (func(), error) {
	unlockLocal, err := l.local.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	unlockRemote, err := l.remote.Lock(ctx, key)
	if err != nil {
		unlockLocal()
		return nil, err
	}
	return func() {
		unlockRemote()
		unlockLocal()
	}, nil
}
