// Package shell executes commands under the environment sanitizer with
// wall-clock and idle timeouts, cooperative cancellation, and
// process-group termination.
package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/jg-phare/ollm/pkg/environ"
)

// Input describes one command execution request. Cancellation is carried
// by the ctx passed to Execute, not by a field here: a ctx already
// cancelled at call time, or cancelled mid-flight, terminates the
// process and returns ErrCommandCancelled.
type Input struct {
	Command string
	Cwd     string

	// Timeout is the hard wall-clock limit. Zero means no timeout.
	Timeout time.Duration
	// IdleTimeout fires if no output byte arrives within the window.
	// Zero disables it.
	IdleTimeout time.Duration

	Background bool
	Env        map[string]string
	OnOutput   func(chunk string)
}

// Output is the result of a completed (or backgrounded) command.
type Output struct {
	ExitCode  int
	Output    string
	Error     string
	ProcessID int
}

const backgroundStartedMessage = "Background process started"

// Execute runs in.Command through a shell, merging interleaved stdout
// and stderr in arrival order into Output.Output. Only timeouts,
// cancellation, and spawn failure return a non-nil error; a non-zero
// exit code is reported in Output.ExitCode without error.
func Execute(ctx context.Context, sanitizer *environ.Sanitizer, in Input) (Output, error) {
	shellPath := detectShell()
	cmd := exec.Command(shellPath, "-c", in.Command)
	cmd.Dir = in.Cwd
	cmd.Env = buildEnv(sanitizer, in.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Output{}, &SpawnFailedError{Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Output{}, &SpawnFailedError{Err: err}
	}

	if err := cmd.Start(); err != nil {
		return Output{}, &SpawnFailedError{Err: err}
	}
	pid := cmd.Process.Pid

	if in.Background {
		return Output{
			ExitCode:  0,
			Output:    backgroundStartedMessage,
			ProcessID: pid,
		}, nil
	}

	type chunk = struct {
		data    string
		isError bool
	}
	chunks := make(chan chunk, 32)
	var wg sync.WaitGroup
	wg.Add(2)
	go pump(stdout, false, chunks, &wg)
	go pump(stderr, true, chunks, &wg)
	go func() {
		wg.Wait()
		close(chunks)
	}()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var timeoutTimer, idleTimer *time.Timer
	if in.Timeout > 0 {
		timeoutTimer = time.NewTimer(in.Timeout)
		defer timeoutTimer.Stop()
	}
	if in.IdleTimeout > 0 {
		idleTimer = time.NewTimer(in.IdleTimeout)
		defer idleTimer.Stop()
	}

	select {
	case <-ctx.Done():
		killProcessGroup(pid)
		go func() {
			for range chunks {
			}
		}()
		<-done
		return Output{}, ErrCommandCancelled
	default:
	}

	var out, errOut strings.Builder
	var terminationErr error

	drain := func() {
		for c := range chunks {
			out.WriteString(c.data)
			if c.isError {
				errOut.WriteString(c.data)
			}
			if in.OnOutput != nil {
				safeOnOutput(in.OnOutput, c.data)
			}
		}
	}

loop:
	for {
		var timeoutCh, idleCh <-chan time.Time
		if timeoutTimer != nil {
			timeoutCh = timeoutTimer.C
		}
		if idleTimer != nil {
			idleCh = idleTimer.C
		}

		select {
		case c, ok := <-chunks:
			if !ok {
				break loop
			}
			out.WriteString(c.data)
			if c.isError {
				errOut.WriteString(c.data)
			}
			if in.OnOutput != nil {
				safeOnOutput(in.OnOutput, c.data)
			}
			if idleTimer != nil {
				if !idleTimer.Stop() {
					select {
					case <-idleTimer.C:
					default:
					}
				}
				idleTimer.Reset(in.IdleTimeout)
			}

		case <-timeoutCh:
			killProcessGroup(pid)
			terminationErr = &TimedOutError{Timeout: in.Timeout}
			go drain()
			break loop

		case <-idleCh:
			killProcessGroup(pid)
			terminationErr = &IdleTimedOutError{IdleTimeout: in.IdleTimeout}
			go drain()
			break loop

		case <-ctx.Done():
			killProcessGroup(pid)
			terminationErr = ErrCommandCancelled
			go drain()
			break loop
		}
	}

	waitErr := <-done
	if terminationErr != nil {
		return Output{}, terminationErr
	}

	exitCode := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return Output{}, &SpawnFailedError{Err: waitErr}
		}
	}

	return Output{
		ExitCode:  exitCode,
		Output:    out.String(),
		Error:     errOut.String(),
		ProcessID: pid,
	}, nil
}

func pump(r io.Reader, isError bool, out chan<- struct {
	data    string
	isError bool
}, wg *sync.WaitGroup) {
	defer wg.Done()
	buf := make([]byte, 4096)
	reader := bufio.NewReader(r)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			out <- struct {
				data    string
				isError bool
			}{data: string(buf[:n]), isError: isError}
		}
		if err != nil {
			return
		}
	}
}

func safeOnOutput(cb func(string), chunk string) {
	defer func() { recover() }()
	cb(chunk)
}

// killProcessGroup sends SIGTERM to the process group, then SIGKILL after
// a short grace period if it is still alive.
func killProcessGroup(pid int) {
	_ = unix.Kill(-pid, unix.SIGTERM)
	time.Sleep(200 * time.Millisecond)
	_ = unix.Kill(-pid, unix.SIGKILL)
}

func detectShell() string {
	if s := os.Getenv("SHELL"); s != "" {
		return s
	}
	if bash, err := exec.LookPath("bash"); err == nil {
		return bash
	}
	return "/bin/sh"
}

func buildEnv(sanitizer *environ.Sanitizer, overrides map[string]string) []string {
	merged := make(map[string]string)
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			merged[parts[0]] = parts[1]
		}
	}
	for k, v := range overrides {
		merged[k] = v
	}

	sanitized := merged
	if sanitizer != nil {
		sanitized = sanitizer.Sanitize(merged)
	}

	out := make([]string, 0, len(sanitized))
	for k, v := range sanitized {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}
