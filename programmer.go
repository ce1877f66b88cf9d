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

// Flashes a HEX file by running the external UPDI programmer (prog.py) and
// classifies what it printed.
package gobbg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
)

const (
	BaudRate = 57600

	updiFailedMarker     = "UPDI init failed"
	deviceMismatchMarker = "Device ID mismatch"

	// Capacity of the line channel returned by Stream.
	streamBuffer = 64
)

// Written on every attempt, whatever the device or file.
var FuseArgs = []string{"0:0b00000000", "2:0x01", "6:0x04", "7:0x00", "8:0x00"}

var (
	ErrProgrammerMissing = errors.New("prog.py path not set or missing")
	ErrPortNotDetected   = errors.New("CH340 COM port not detected")
	ErrBusy              = errors.New("another programming attempt is running")
)

type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeUpdiFailed
	OutcomeDeviceMismatch
	OutcomeFailed
	// Spawning or reading the child failed, or the session log could not be
	// written.
	OutcomeException
	// Programmer path or port missing; nothing was spawned.
	OutcomeConfigError
	OutcomeBusy
)

var outcomeNames = map[Outcome]string{
	OutcomeSuccess:        "success",
	OutcomeUpdiFailed:     "updi_failed",
	OutcomeDeviceMismatch: "device_mismatch",
	OutcomeFailed:         "failed",
	OutcomeException:      "exception",
	OutcomeConfigError:    "config_error",
	OutcomeBusy:           "busy",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return "Outcome(" + strconv.Itoa(int(o)) + ")"
}

// Classify maps programmer output and exit code to an outcome. The output
// markers take precedence over the exit code.
func Classify(output string, exitCode int) Outcome {
	switch {
	case strings.Contains(output, updiFailedMarker):
		return OutcomeUpdiFailed
	case strings.Contains(output, deviceMismatchMarker):
		return OutcomeDeviceMismatch
	case exitCode == 0:
		return OutcomeSuccess
	default:
		return OutcomeFailed
	}
}

// What to flash and where.
type Request struct {
	ProgrammerPath string
	Port           string
	File           string
	Device         DeviceType
}

type Result struct {
	ID       string
	Outcome  Outcome
	Device   DeviceType
	File     string
	ExitCode int
	// Set once the attempt has been logged.
	Record   *AttemptRecord
	Err      error
	Duration time.Duration
}

// Spawned reports whether the programmer was started.
func (r *Result) Spawned() bool {
	return r.Outcome != OutcomeConfigError && r.Outcome != OutcomeBusy
}

func (r *Result) OK() bool {
	return r.Outcome == OutcomeSuccess
}

// Title is the dialog title for the result.
func (r *Result) Title() string {
	switch r.Outcome {
	case OutcomeSuccess:
		return "Success"
	case OutcomeException:
		return "Exception"
	default:
		return "Error"
	}
}

// Message is the user-facing text for the result.
func (r *Result) Message() string {
	switch r.Outcome {
	case OutcomeSuccess:
		return "Programming successful"
	case OutcomeUpdiFailed:
		return "UPDI Failed. Reseat the device."
	case OutcomeDeviceMismatch:
		return fmt.Sprintf("Device ID mismatch. Expected device for MCU %s.", r.Device)
	case OutcomeFailed:
		return "Programming failed"
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	return r.Outcome.String()
}

// BuildArgs returns the programmer arguments for one write.
func BuildArgs(port string, dev DeviceType, file string) []string {
	args := []string{
		"-t", "uart",
		"-u", port,
		"-b", strconv.Itoa(BaudRate),
		"-d", string(dev),
		"--fuses",
	}
	args = append(args, FuseArgs...)
	return append(args, "-f", file, "-a", "write", "-v")
}

// DefaultPython is the interpreter used for .py programmers.
func DefaultPython() string {
	if runtime.GOOS == "windows" {
		return "python"
	}
	return "python3"
}

type ProgrammerOption func(*Programmer)

// WithPython sets the interpreter used when the programmer is a .py script.
func WithPython(exe string) ProgrammerOption {
	return func(p *Programmer) {
		if exe != "" {
			p.python = exe
		}
	}
}

// Runs at most one attempt at a time.
type Programmer struct {
	runner Runner
	log    *SessionLog
	python string

	busy sync.Mutex
}

func NewProgrammer(runner Runner, log *SessionLog, opts ...ProgrammerOption) *Programmer {
	p := &Programmer{runner: runner, log: log, python: DefaultPython()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Command returns the executable and arguments for req.
func (p *Programmer) Command(req Request) (string, []string) {
	args := BuildArgs(req.Port, req.Device, req.File)
	if strings.EqualFold(filepath.Ext(req.ProgrammerPath), ".py") {
		return p.python, append([]string{req.ProgrammerPath}, args...)
	}
	return req.ProgrammerPath, args
}

func checkProgrammerPath(path string) error {
	if path == "" {
		glog.Warning("Programmer path not set")
		return ErrProgrammerMissing
	}
	if _, err := os.Stat(path); err != nil {
		glog.Warningf("Programmer path unusable: %v", err)
		return ErrProgrammerMissing
	}
	return nil
}

// Program runs the programmer for req and blocks until it exits. onLine is
// called for every output line on the calling goroutine, so it must not
// block. The attempt is appended to the session log before returning unless
// the programmer could not be started.
func (p *Programmer) Program(ctx context.Context, req Request, onLine func(string)) *Result {
	start := time.Now()
	res := &Result{
		ID:       uuid.NewString(),
		Device:   req.Device,
		File:     req.File,
		ExitCode: -1,
	}
	defer func() {
		res.Duration = time.Since(start)
		observeAttempt(res)
		glog.Infof("[%s] %s: %s (%v)", res.ID, filepath.Base(req.File), res.Outcome, res.Duration)
	}()

	if !p.busy.TryLock() {
		res.Outcome, res.Err = OutcomeBusy, ErrBusy
		return res
	}
	defer p.busy.Unlock()

	if err := checkProgrammerPath(req.ProgrammerPath); err != nil {
		res.Outcome, res.Err = OutcomeConfigError, err
		return res
	}
	if req.Port == "" {
		res.Outcome, res.Err = OutcomeConfigError, ErrPortNotDetected
		return res
	}

	name, args := p.Command(req)
	glog.Infof("[%s] Writing %s to %s on %s", res.ID, req.File, req.Device, req.Port)

	var output strings.Builder
	code, err := p.runner.Run(ctx, name, args, func(line string) {
		output.WriteString(line)
		output.WriteByte('\n')
		if onLine != nil {
			onLine(line)
		}
	})
	if err != nil {
		res.Outcome, res.Err = OutcomeException, err
		return res
	}
	res.ExitCode = code

	rec, err := p.log.Append(filepath.Base(req.File), output.String())
	if err != nil {
		res.Outcome, res.Err = OutcomeException, err
		return res
	}
	res.Record = &rec
	res.Outcome = Classify(output.String(), code)
	return res
}

// Stream runs Program on a new goroutine. Lines arrive in order on the first
// channel, which is closed when the child exits; the result follows on the
// second. The caller must keep reading lines until the channel closes or ctx
// is done.
func (p *Programmer) Stream(ctx context.Context, req Request) (<-chan string, <-chan *Result) {
	lines := make(chan string, streamBuffer)
	done := make(chan *Result, 1)
	go func() {
		defer close(done)
		res := p.Program(ctx, req, func(line string) {
			select {
			case lines <- line:
			case <-ctx.Done():
			}
		})
		close(lines)
		done <- res
	}()
	return lines, done
}
