package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"syscall"

	"github.com/MrSnakeDoc/linkup/internal/localstate"
)

// fakeSignaler records signals and answers from a table of live pids.
type fakeSignaler struct {
	mu    sync.Mutex
	alive map[int]bool
	err   error // returned for every non-zero signal when set
	sent  []string
}

func newFakeSignaler(pids ...int) *fakeSignaler {
	f := &fakeSignaler{alive: map[int]bool{}}
	for _, p := range pids {
		f.alive[p] = true
	}
	return f
}

func (f *fakeSignaler) Signal(pid int, sig syscall.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sig != 0 {
		f.sent = append(f.sent, fmt.Sprintf("%d:%d", pid, sig))
		if f.err != nil {
			return f.err
		}
	}
	if !f.alive[pid] {
		return fmt.Errorf("%w: %d", ErrNoSuchProcess, pid)
	}
	if sig != 0 {
		delete(f.alive, pid)
	}
	return nil
}

// fakeService becomes ready after readyAfter Ready calls once started.
type fakeService struct {
	name       string
	reg        Registry
	sig        Signaler
	pid        int
	readyAfter int
	setupErr   error
	startErr   error
	stopErr    error
	tunnel     string

	mu      sync.Mutex
	started bool
	checks  int
	log     *[]string
}

func (s *fakeService) Name() string { return s.name }

func (s *fakeService) Setup(context.Context) error {
	s.record("setup")
	return s.setupErr
}

func (s *fakeService) Start(context.Context) error {
	s.record("start")
	if s.startErr != nil {
		return s.startErr
	}
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	if f, ok := s.sig.(*fakeSignaler); ok {
		f.mu.Lock()
		f.alive[s.pid] = true
		f.mu.Unlock()
	}
	return s.reg.WritePid(s.name, s.pid)
}

func (s *fakeService) Ready(context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks++
	return s.started && s.checks > s.readyAfter
}

func (s *fakeService) Stop(context.Context) error {
	s.record("stop")
	if s.stopErr != nil {
		return s.stopErr
	}
	return StopPidFile(s.reg, s.sig, s.name, syscall.SIGINT)
}

func (s *fakeService) Pid() (string, bool) { return PidString(s.reg, s.sig, s.name) }

func (s *fakeService) UpdateLocalState(st *localstate.State) error {
	if s.tunnel == "" {
		return nil
	}
	st.Linkup.Tunnel = s.tunnel
	return nil
}

func (s *fakeService) record(what string) {
	if s.log != nil {
		*s.log = append(*s.log, s.name+":"+what)
	}
}

var errBoom = errors.New("boom")

func pidOf(t interface{ Fatal(...any) }, reg Registry, name string) string {
	pid, err := reg.ReadPid(name)
	if err != nil {
		t.Fatal(err)
	}
	return strconv.Itoa(pid)
}
