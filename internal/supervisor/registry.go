package supervisor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/MrSnakeDoc/linkup/internal/utils"
)

// Registry stores pid files. A pid file is only a hint: liveness is always
// checked by signalling the pid.
type Registry interface {
	ReadPid(name string) (int, error)
	WritePid(name string, pid int) error
	RemovePid(name string) error
	PidPath(name string) string
}

// FileRegistry keeps pid files as <Dir>/<name>-pid.
type FileRegistry struct {
	Dir string
}

func (r FileRegistry) PidPath(name string) string {
	return filepath.Join(r.Dir, name+"-pid")
}

func (r FileRegistry) ReadPid(name string) (int, error) {
	data, err := os.ReadFile(r.PidPath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrNoPidFile, name)
		}
		return 0, fmt.Errorf("read pid file %s: %w", name, err)
	}
	return parsePid(name, string(data))
}

func (r FileRegistry) WritePid(name string, pid int) error {
	return utils.AtomicWriteFile(r.PidPath(name), []byte(strconv.Itoa(pid)), 0o644)
}

func (r FileRegistry) RemovePid(name string) error {
	err := os.Remove(r.PidPath(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove pid file %s: %w", name, err)
	}
	return nil
}

func parsePid(name, raw string) (int, error) {
	pid, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%w: %s holds %q", ErrMalformedPid, name, strings.TrimSpace(raw))
	}
	return pid, nil
}

// MemoryRegistry keeps pid files in memory. Raw values may be set to simulate
// corrupted files.
type MemoryRegistry struct {
	mu   sync.Mutex
	pids map[string]string
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{pids: make(map[string]string)}
}

func (r *MemoryRegistry) PidPath(name string) string { return "mem://" + name + "-pid" }

func (r *MemoryRegistry) ReadPid(name string) (int, error) {
	r.mu.Lock()
	raw, ok := r.pids[name]
	r.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoPidFile, name)
	}
	return parsePid(name, raw)
}

func (r *MemoryRegistry) WritePid(name string, pid int) error {
	r.SetRaw(name, strconv.Itoa(pid))
	return nil
}

// SetRaw stores raw verbatim as the content of name's pid file.
func (r *MemoryRegistry) SetRaw(name, raw string) {
	r.mu.Lock()
	r.pids[name] = raw
	r.mu.Unlock()
}

func (r *MemoryRegistry) RemovePid(name string) error {
	r.mu.Lock()
	delete(r.pids, name)
	r.mu.Unlock()
	return nil
}

// Has reports whether a pid file exists for name.
func (r *MemoryRegistry) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pids[name]
	return ok
}
