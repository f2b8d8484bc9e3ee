package supervisor

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

func TestStopPidFile(t *testing.T) {
	tests := []struct {
		name        string
		raw         string // pid file content, empty = no pid file
		live        []int
		signalErr   error
		wantErr     error
		wantPidFile bool
	}{
		{name: "missing pid file is stopped", raw: ""},
		{name: "live process", raw: "42", live: []int{42}},
		{name: "dead process is tolerated", raw: "42"},
		{name: "surrounding whitespace", raw: " 42\n", live: []int{42}},
		{name: "malformed pid", raw: "forty-two", wantErr: ErrMalformedPid, wantPidFile: true},
		{name: "zero pid", raw: "0", wantErr: ErrMalformedPid, wantPidFile: true},
		{name: "signal failure keeps pid file", raw: "42", live: []int{42}, signalErr: syscall.EPERM, wantErr: syscall.EPERM, wantPidFile: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewMemoryRegistry()
			if tt.raw != "" {
				reg.SetRaw("svc", tt.raw)
			}
			sig := newFakeSignaler(tt.live...)
			sig.err = tt.signalErr

			err := StopPidFile(reg, sig, "svc", syscall.SIGINT)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("StopPidFile() error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("StopPidFile() error = %v", err)
			}
			if reg.Has("svc") != tt.wantPidFile {
				t.Errorf("pid file present = %v, want %v", reg.Has("svc"), tt.wantPidFile)
			}
		})
	}
}

func TestStopPidFileIsIdempotent(t *testing.T) {
	reg := NewMemoryRegistry()
	_ = reg.WritePid("svc", 42)
	sig := newFakeSignaler(42)

	for i := 0; i < 3; i++ {
		if err := StopPidFile(reg, sig, "svc", syscall.SIGTERM); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if len(sig.sent) != 1 {
		t.Errorf("signals sent = %v, want exactly one", sig.sent)
	}
}

func TestFileRegistry(t *testing.T) {
	dir := t.TempDir()
	reg := FileRegistry{Dir: dir}

	if _, err := reg.ReadPid("localserver"); !errors.Is(err, ErrNoPidFile) {
		t.Fatalf("ReadPid() on missing = %v", err)
	}
	if err := reg.WritePid("localserver", 1234); err != nil {
		t.Fatal(err)
	}
	if reg.PidPath("localserver") != filepath.Join(dir, "localserver-pid") {
		t.Errorf("PidPath() = %q", reg.PidPath("localserver"))
	}
	pid, err := reg.ReadPid("localserver")
	if err != nil || pid != 1234 {
		t.Fatalf("ReadPid() = %d, %v", pid, err)
	}

	if err := os.WriteFile(reg.PidPath("caddy"), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.ReadPid("caddy"); !errors.Is(err, ErrMalformedPid) {
		t.Errorf("ReadPid() on garbage = %v", err)
	}

	if err := reg.RemovePid("localserver"); err != nil {
		t.Fatal(err)
	}
	if err := reg.RemovePid("localserver"); err != nil {
		t.Errorf("removing a missing pid file should succeed, got %v", err)
	}
}

func TestUnixSignalerReachesSelf(t *testing.T) {
	var s UnixSignaler
	if err := s.Signal(os.Getpid(), 0); err != nil {
		t.Errorf("probing own pid failed: %v", err)
	}
	if err := s.Signal(0, 0); err == nil {
		t.Error("pid 0 must be refused")
	}
}

func TestLivePid(t *testing.T) {
	reg := NewMemoryRegistry()
	sig := newFakeSignaler(7)

	if _, ok := LivePid(reg, sig, "svc"); ok {
		t.Error("no pid file should not be live")
	}
	_ = reg.WritePid("svc", 8)
	if _, ok := LivePid(reg, sig, "svc"); ok {
		t.Error("dead pid should not be live")
	}
	_ = reg.WritePid("svc", 7)
	if pid, ok := PidString(reg, sig, "svc"); !ok || pid != "7" {
		t.Errorf("PidString() = %q, %v", pid, ok)
	}
}

type signalerFunc func(pid int, sig syscall.Signal) error

func (f signalerFunc) Signal(pid int, sig syscall.Signal) error { return f(pid, sig) }

func TestLivePidSignalErrors(t *testing.T) {
	tests := []struct {
		name     string
		sigErr error
		want     bool
	}{
		{name: "no such process", sigErr: ErrNoSuchProcess, want: false},
		{name: "permission denied still exists", sigErr: syscall.EPERM, want: true},
		{name: "signal delivered", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewMemoryRegistry()
			_ = reg.WritePid("caddy", 42)
			sig := signalerFunc(func(int, syscall.Signal) error { return tt.sigErr })

			if _, ok := LivePid(reg, sig, "caddy"); ok != tt.want {
				t.Errorf("LivePid() alive = %v, want %v", ok, tt.want)
			}
		})
	}
}
