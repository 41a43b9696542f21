package wal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// CheckpointFileName is the name of the checkpoint flag file inside the data directory.
const CheckpointFileName = "checkpoint"

// Flag is the one byte shutdown marker.
type Flag uint8

const (
	FlagClean Flag = 0 // last shutdown was graceful, no replay needed
	FlagDirty Flag = 1 // server was running or crashed, replay needed
)

func (f Flag) String() string {
	switch f {
	case FlagClean:
		return "CLEAN"
	case FlagDirty:
		return "DIRTY"
	default:
		return fmt.Sprintf("Flag(%d)", uint8(f))
	}
}

// WriteCheckpoint overwrites the flag file with a single byte and syncs it.
func WriteCheckpoint(path string, flag Flag) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open checkpoint %s: %w", path, err)
	}
	if _, err := f.Write([]byte{byte(flag)}); err != nil {
		_ = f.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	return f.Close()
}

// ReadCheckpoint returns the stored flag. present is false if the file does not exist.
// An empty file or an unknown byte is treated as FlagDirty.
func ReadCheckpoint(path string) (flag Flag, present bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return FlagClean, false, nil
	}
	if err != nil {
		return FlagDirty, false, fmt.Errorf("read checkpoint %s: %w", path, err)
	}

	if len(data) == 0 || (Flag(data[0]) != FlagClean && Flag(data[0]) != FlagDirty) {
		log.Warningf("checkpoint %s holds an invalid value %v, assuming %s", path, data, FlagDirty)
		return FlagDirty, true, nil
	}
	return Flag(data[0]), true, nil
}
