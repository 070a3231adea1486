// Package fingerprint derives the stable per-install device identifier the
// customer portal binds OTP and refresh flows to.
package fingerprint

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const fileName = "device-fingerprint"

// Store persists the fingerprint next to the session snapshot. The value
// is generated once and survives logouts; only wiping the data folder
// produces a new device identity.
type Store struct {
	fs   afero.Fs
	path string
}

// NewStore returns a fingerprint store rooted at dir.
func NewStore(fs afero.Fs, dir string) (*Store, error) {
	if err := fs.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "[fingerprint.NewStore] MkdirAll")
	}
	return &Store{fs: fs, path: filepath.Join(dir, fileName)}, nil
}

// Get returns the stored fingerprint, generating and persisting one on
// first use.
func (s *Store) Get() (string, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err == nil {
		if fp := strings.TrimSpace(string(data)); fp != "" {
			return fp, nil
		}
	} else if !os.IsNotExist(err) {
		return "", errors.Wrap(err, "[fingerprint.Get] ReadFile")
	}

	fp := uuid.New().String()
	if err := afero.WriteFile(s.fs, s.path, []byte(fp+"\n"), 0o600); err != nil {
		return "", errors.Wrap(err, "[fingerprint.Get] WriteFile")
	}
	return fp, nil
}
