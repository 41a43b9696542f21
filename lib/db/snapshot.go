package db

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// SnapshotFileName is the name of the snapshot file inside the data directory.
const SnapshotFileName = "state.snap"

// SaveSnapshot writes the database to path. The snapshot is first written to a temporary
// file in the same directory and then renamed over path, so a crash never leaves a partial
// snapshot behind.
func SaveSnapshot(database KVDB, path string) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = database.Save(tmp); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return syncDir(dir)
}

// LoadSnapshot restores the database from path. It returns false without error if no
// snapshot exists.
func LoadSnapshot(database KVDB, path string) (bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	if err := database.Load(f); err != nil {
		return false, fmt.Errorf("load snapshot %s: %w", path, err)
	}
	return true, nil
}

// syncDir makes a rename inside dir durable
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open data dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync data dir: %w", err)
	}
	return nil
}
