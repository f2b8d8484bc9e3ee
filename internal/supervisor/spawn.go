package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/MrSnakeDoc/linkup/internal/utils"
)

// Command describes a process to launch detached from the CLI.
type Command struct {
	Path string
	Args []string
	Dir  string
	Env  []string // appended to the current environment

	// Stdout and Stderr are log files, truncated on every start. Empty
	// discards the stream.
	Stdout string
	Stderr string

	// Wait runs the command to completion. Used for launchers that fork the
	// real daemon and exit (caddy start, dnsmasq).
	Wait bool
}

// Spawn starts c in its own session so it survives the CLI and the terminal,
// and returns its pid.
func Spawn(ctx context.Context, c Command) (int, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	if !c.Wait {
		// the daemon must outlive ctx
		cmd = exec.Command(c.Path, c.Args...)
	}
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	stdout, err := openLog(c.Stdout)
	if err != nil {
		return 0, err
	}
	if stdout != nil {
		defer utils.Close(stdout)
		cmd.Stdout = stdout
	}
	stderr, err := openLog(c.Stderr)
	if err != nil {
		return 0, err
	}
	if stderr != nil {
		defer utils.Close(stderr)
		cmd.Stderr = stderr
	}

	if c.Wait {
		if err := cmd.Run(); err != nil {
			return 0, fmt.Errorf("run %s: %w", filepath.Base(c.Path), err)
		}
		return cmd.ProcessState.Pid(), nil
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", filepath.Base(c.Path), err)
	}
	pid := cmd.Process.Pid
	// reap the child if it dies while the CLI is still running
	go func() { _ = cmd.Wait() }()
	return pid, nil
}

func openLog(path string) (*os.File, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
