package initd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// FileStore keeps conditions as files below a directory, one file per
// asserted condition. Condition "net/eth0/exist" lives at
// <dir>/net/eth0/exist. One-shot conditions are written below oneshot/
// and reported by Get like any other.
type FileStore struct {
	dir string
}

const oneshotDir = "oneshot"

// NewFileStore creates the condition directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, DirMode); err != nil {
		return nil, fmt.Errorf("create condition dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the store's directory
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, filepath.FromSlash(name))
}

func (s *FileStore) write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), DirMode); err != nil {
		return err
	}
	// Content is the asserting pid, for debugging
	return renameio.WriteFile(path, fmt.Appendf(nil, "%d\n", os.Getpid()), FileMode)
}

// Set asserts name
func (s *FileStore) Set(name string) error {
	if !validCondName(name) {
		return ErrInvalidArgument
	}
	return s.write(s.path(name))
}

// Clear deasserts name
func (s *FileStore) Clear(name string) error {
	if !validCondName(name) {
		return ErrInvalidArgument
	}
	err := os.Remove(s.path(name))
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Get returns the state of name
func (s *FileStore) Get(name string) CondState {
	if !validCondName(name) {
		return CondUnknown
	}

	for _, p := range []string{s.path(name), s.path(oneshotDir + "/" + name)} {
		_, err := os.Stat(p)
		if err == nil {
			return CondOn
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return CondUnknown
		}
	}
	return CondOff
}

// SetOneshot asserts name as one-shot
func (s *FileStore) SetOneshot(name string) error {
	if !validCondName(name) {
		return ErrInvalidArgument
	}
	return s.write(s.path(oneshotDir + "/" + name))
}
