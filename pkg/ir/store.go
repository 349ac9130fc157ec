package ir

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Stored command file names inside the store directory.
const (
	OnFileName  = "ir_ac_on.cfg"
	OffFileName = "ir_ac_off.cfg"
)

// Store persists one command per Slot as files in a directory.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir. The directory is created on the
// first Save.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file backing slot.
func (s *Store) Path(slot Slot) string {
	if slot == SlotOff {
		return filepath.Join(s.dir, OffFileName)
	}
	return filepath.Join(s.dir, OnFileName)
}

// Save encodes bursts into the slot's file, replacing any previous content.
// A failed write may leave a truncated file behind; Load tolerates that.
func (s *Store) Save(slot Slot, bursts []RawBurst) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	path := s.Path(slot)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if err := Encode(f, bursts); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// Load decodes the slot's file. A missing file yields ErrNoCommand.
func (s *Store) Load(slot Slot) ([]RawBurst, error) {
	path := s.Path(slot)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoCommand, path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	bursts, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bursts, nil
}

// Exists reports whether both slot files can be opened. Content is not
// validated.
func (s *Store) Exists() bool {
	for _, slot := range []Slot{SlotOn, SlotOff} {
		f, err := os.Open(s.Path(slot))
		if err != nil {
			return false
		}
		f.Close()
	}
	return true
}
