// Package snapshotrepo persists the session snapshot as a named JSON entry
// on a filesystem.
package snapshotrepo

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/hotspotlabs/go-portal-session/session"
)

var _ session.SnapshotRepo = (*FileRepo)(nil)

// FileRepo stores the snapshot under a fixed storage name. Absence of the
// entry means "logged out" on next load.
type FileRepo struct {
	fs   afero.Fs
	path string
	lock sync.Mutex
}

// NewFileRepo creates the storage directory if needed and returns a repo
// writing to dir/name.
func NewFileRepo(fs afero.Fs, dir, name string) (*FileRepo, error) {
	if err := fs.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "[NewFileRepo] MkdirAll")
	}
	return &FileRepo{fs: fs, path: filepath.Join(dir, name)}, nil
}

func (r *FileRepo) Save(snap *session.Snapshot) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.Wrap(err, "[FileRepo.Save] Marshal")
	}
	if err := afero.WriteFile(r.fs, r.path, data, 0o600); err != nil {
		return errors.Wrap(err, "[FileRepo.Save] WriteFile")
	}
	return nil
}

func (r *FileRepo) Load() (*session.Snapshot, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	data, err := afero.ReadFile(r.fs, r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "[FileRepo.Load] ReadFile")
	}

	var snap session.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		// A corrupted snapshot means "logged out", not a fatal start.
		return nil, nil
	}
	return &snap, nil
}

func (r *FileRepo) Clear() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if err := r.fs.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "[FileRepo.Clear] Remove")
	}
	return nil
}
