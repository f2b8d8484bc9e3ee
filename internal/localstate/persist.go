package localstate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/MrSnakeDoc/linkup/internal/utils"
)

// FileName is the name of the state file inside the linkup directory.
const FileName = "state"

// ErrNoState is returned when no state file exists yet (linkup never started).
var ErrNoState = errors.New("no linkup state, run linkup start first")

// Path returns the state file location inside dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Load reads the state file at path.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoState, path)
		}
		return nil, fmt.Errorf("failed to read state: %w", err)
	}

	var s State
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse state %s: %w", path, err)
	}
	return &s, nil
}

// Save atomically replaces the state file at path.
func Save(path string, s *State) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	return utils.AtomicWriteFile(path, data, 0o600)
}

// Update runs fn on the current state under an exclusive file lock and saves
// the result when fn succeeds. Concurrent CLI invocations are serialized.
func Update(path string, fn func(*State) error) (*State, error) {
	unlock, err := utils.AcquireLock(path + ".lock")
	if err != nil {
		return nil, err
	}
	defer unlock()

	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	if err := Save(path, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Replace saves s under the state lock, whether or not a state existed.
func Replace(path string, s *State) error {
	unlock, err := utils.AcquireLock(path + ".lock")
	if err != nil {
		return err
	}
	defer unlock()
	return Save(path, s)
}
