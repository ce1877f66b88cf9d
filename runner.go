// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Child process execution.
package gobbg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
	"github.com/golang/glog"
)

const maxLineSize = 1024 * 1024

//go:generate mockgen -destination=mocks/runner.go -package=mocks github.com/google/gobbg Runner
type Runner interface {
	// Runs name with args and calls onLine, in order, for every line the
	// child writes to stdout or stderr. Returns the exit code once the child
	// has exited. A child killed by a signal reports -1.
	Run(ctx context.Context, name string, args []string, onLine func(string)) (int, error)
}

type ExecRunner struct {
	// Runs the child on a pseudo-terminal. Python block-buffers stdout on a
	// pipe, so without a terminal the console only fills in at exit.
	UsePty bool
}

func (r ExecRunner) start(cmd *exec.Cmd) (io.ReadCloser, error) {
	if r.UsePty {
		ptmx, err := pty.Start(cmd)
		if err != nil {
			return nil, fmt.Errorf("pty.Start failed: %w", err)
		}
		return ptmx, nil
	}
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("StdoutPipe failed: %w", err)
	}
	// Same writer for both streams keeps their relative order.
	cmd.Stderr = cmd.Stdout
	if err = cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", cmd.Path, err)
	}
	return out, nil
}

func (r ExecRunner) Run(ctx context.Context, name string, args []string, onLine func(string)) (int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	glog.V(1).Infof("[exec] %s %v", name, args)

	out, err := r.start(cmd)
	if err != nil {
		return -1, err
	}

	readErr := drainLines(out, onLine)
	if readErr != nil {
		// Nobody reads the rest; don't let the child block on a full pipe.
		cmd.Process.Kill()
	}
	if r.UsePty {
		out.Close()
	}
	waitErr := cmd.Wait()
	if readErr != nil {
		return -1, fmt.Errorf("reading child output: %w", readErr)
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		return 0, nil
	case errors.As(waitErr, &exitErr):
		return exitErr.ExitCode(), nil
	default:
		return -1, fmt.Errorf("waiting for %s: %w", name, waitErr)
	}
}

// Calls onLine for each line of src until EOF.
func drainLines(src io.Reader, onLine func(string)) error {
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		onLine(sc.Text())
	}
	err := sc.Err()
	// The pty master reports EIO once the child side has closed.
	if errors.Is(err, syscall.EIO) {
		return nil
	}
	return err
}
