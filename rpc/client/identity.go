package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ValentinKolb/roc/lib/store"
)

const (
	userIDDir  = ".roc_client"
	userIDFile = "user_id.crd"
)

// DefaultUserIDFile returns ~/.roc_client/user_id.crd
func DefaultUserIDFile() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot locate home directory: %w", err)
	}
	return filepath.Join(home, userIDDir, userIDFile), nil
}

// LoadOrCreateUserID performs the HI handshake. The id stored in path is offered to the
// server, the id the server confirms (or mints) is written back. In test mode nothing is
// read or written and every call returns a fresh id.
func LoadOrCreateUserID(s store.IStore, path string, testMode bool) (string, error) {
	if testMode {
		return s.Hi("")
	}

	stored, err := readUserID(path)
	if err != nil {
		return "", err
	}

	userID, err := s.Hi(stored)
	if err != nil {
		return "", err
	}

	if userID != stored {
		if stored != "" {
			Logger.Warningf("server replaced stored user id %s with %s", stored, userID)
		}
		if err := writeUserID(path, userID); err != nil {
			return "", err
		}
	}
	return userID, nil
}

func readUserID(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read user id from %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func writeUserID(path, userID string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(userID+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to store user id in %s: %w", path, err)
	}
	return nil
}
