package snapshotrepo_test

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/hotspotlabs/go-portal-session/session"
	"github.com/hotspotlabs/go-portal-session/session/snapshotrepo"
)

func TestSaveLoadClear(t *testing.T) {
	fs := afero.NewMemMapFs()
	repo, err := snapshotrepo.NewFileRepo(fs, "data", "portal-session.json")
	require.NoError(t, err)

	snap := &session.Snapshot{
		Identity:      &session.Identity{ID: "user-1", Username: "ops.admin"},
		AccessToken:   "access-1",
		RefreshToken:  "refresh-1",
		Authenticated: true,
		ExpiresAt:     time.Now().Add(time.Hour).UTC().Truncate(time.Second),
		LastActivity:  time.Now().UTC().Truncate(time.Second),
		Permissions:   []string{"customers.read"},
		Preferences:   map[string]string{"theme": "dark"},
	}
	require.NoError(t, repo.Save(snap))

	loaded, err := repo.Load()
	require.NoError(t, err)
	require.Equal(t, snap, loaded)

	require.NoError(t, repo.Clear())
	loaded, err = repo.Load()
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestLoadWithoutSnapshotMeansLoggedOut(t *testing.T) {
	repo, err := snapshotrepo.NewFileRepo(afero.NewMemMapFs(), "data", "portal-session.json")
	require.NoError(t, err)

	loaded, err := repo.Load()
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestCorruptSnapshotTreatedAsLoggedOut(t *testing.T) {
	fs := afero.NewMemMapFs()
	repo, err := snapshotrepo.NewFileRepo(fs, "data", "portal-session.json")
	require.NoError(t, err)

	require.NoError(t, afero.WriteFile(fs, "data/portal-session.json", []byte("{broken"), 0o600))

	loaded, err := repo.Load()
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestClearIsIdempotent(t *testing.T) {
	repo, err := snapshotrepo.NewFileRepo(afero.NewMemMapFs(), "data", "portal-session.json")
	require.NoError(t, err)
	require.NoError(t, repo.Clear())
	require.NoError(t, repo.Clear())
}
