package repofakes

import (
	"sync"

	"github.com/hotspotlabs/go-portal-session/session"
)

var _ session.SnapshotRepo = (*FakeSnapshotRepo)(nil)

type FakeSnapshotRepo struct {
	lock sync.Mutex

	snap       *session.Snapshot
	SaveCount  int
	ClearCount int
	SaveErr    error
	LoadErr    error
}

func NewFakeSnapshotRepo() *FakeSnapshotRepo {
	return &FakeSnapshotRepo{}
}

// Seed plants a snapshot as if a prior process had persisted it.
func (r *FakeSnapshotRepo) Seed(snap *session.Snapshot) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.snap = snap
}

func (r *FakeSnapshotRepo) Save(snap *session.Snapshot) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.SaveErr != nil {
		return r.SaveErr
	}
	copied := *snap
	r.snap = &copied
	r.SaveCount++
	return nil
}

func (r *FakeSnapshotRepo) Load() (*session.Snapshot, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.LoadErr != nil {
		return nil, r.LoadErr
	}
	return r.snap, nil
}

func (r *FakeSnapshotRepo) Clear() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.snap = nil
	r.ClearCount++
	return nil
}

// Stored returns the current snapshot, or nil when cleared.
func (r *FakeSnapshotRepo) Stored() *session.Snapshot {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.snap
}
