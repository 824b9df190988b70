package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, dir, profile string, reload ReloadFunc, opts ...WatcherOption) *Watcher {
	t.Helper()

	opts = append([]WatcherOption{WithDebounceDelay(20 * time.Millisecond)}, opts...)
	w, err := NewWatcher(dir, profile, reload, opts...)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func TestWatcher_ReloadsOnSpecChange(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var reloads atomic.Int32
	startWatcher(t, dir, "", func(context.Context) error {
		reloads.Add(1)
		return nil
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "users.yaml"), []byte("id: users\n"), 0o600))
	}

	assert.Eventually(t, func() bool { return reloads.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var reloads atomic.Int32
	startWatcher(t, dir, "", func(context.Context) error {
		reloads.Add(1)
		return nil
	})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("notes"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users.yaml.swp"), []byte("x"), 0o600))

	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, reloads.Load())
}

func TestWatcher_ProfileOutsideSpecsDir(t *testing.T) {
	t.Parallel()

	specs := t.TempDir()
	profileDir := t.TempDir()
	profile := filepath.Join(profileDir, "profile.yaml")
	require.NoError(t, os.WriteFile(profile, []byte("id: p\n"), 0o600))

	var reloads atomic.Int32
	startWatcher(t, specs, profile, func(context.Context) error {
		reloads.Add(1)
		return nil
	})

	require.NoError(t, os.WriteFile(filepath.Join(profileDir, "other.yaml"), []byte("x"), 0o600))
	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, reloads.Load())

	require.NoError(t, os.WriteFile(profile, []byte("id: p2\n"), 0o600))
	assert.Eventually(t, func() bool { return reloads.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_ReloadErrorCallback(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	reloadErr := errors.New("compile failed")
	errCh := make(chan error, 4)
	startWatcher(t, dir, "",
		func(context.Context) error { return reloadErr },
		WithErrorCallback(func(err error) { errCh <- err }),
	)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yml"), []byte(":"), 0o600))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, reloadErr)
	case <-time.After(2 * time.Second):
		t.Fatal("error callback not called")
	}
}

func TestWatcher_StartStopIdempotent(t *testing.T) {
	t.Parallel()

	w, err := NewWatcher(t.TempDir(), "", func(context.Context) error { return nil })
	require.NoError(t, err)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}

func TestWatcher_MissingDir(t *testing.T) {
	t.Parallel()

	w, err := NewWatcher(filepath.Join(t.TempDir(), "absent"), "", func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Error(t, w.Start(context.Background()))
}
