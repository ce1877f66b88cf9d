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

// Application state shared by the command line, desktop and web front ends.
package gobbg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/gobbg/util"

	"github.com/golang/glog"
)

type Options struct {
	// Defaults to DefaultConfigPath().
	ConfigPath string
	// Directory for packdataN.txt. Defaults to the working directory.
	SessionDir string
	// Interpreter for .py programmers. Defaults to DefaultPython().
	Python string
	// Run the programmer on a pseudo-terminal.
	UsePty bool

	// Defaults to SerialEnumerator.
	Enumerator PortEnumerator
	// Defaults to ExecRunner.
	Runner Runner
	// Called when no adapter port is found, to report bridges present on the
	// USB bus. Typically FindUsbBridges; nil skips the scan.
	BridgeScan func() ([]UsbBridge, error)
}

// App owns the configuration, the detected port, the session log and the
// programmer for one run of the tool.
type App struct {
	configPath string
	port       string
	log        *SessionLog
	prog       *Programmer

	mu     sync.Mutex
	config *Configuration
}

// NewApp loads the configuration and detects the adapter port. The port is
// detected once; a later hot-plug needs a restart.
func NewApp(opts Options) (*App, error) {
	if opts.ConfigPath == "" {
		opts.ConfigPath = DefaultConfigPath()
	}
	if opts.SessionDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("Getwd failed: %v", err)
		}
		opts.SessionDir = wd
	}
	if opts.Enumerator == nil {
		opts.Enumerator = SerialEnumerator{}
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner{UsePty: opts.UsePty}
	}

	config, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	a := &App{
		configPath: opts.ConfigPath,
		config:     config,
		log:        NewSessionLog(opts.SessionDir),
	}
	a.prog = NewProgrammer(opts.Runner, a.log, WithPython(opts.Python))

	var found bool
	if a.port, found = DetectPort(opts.Enumerator); !found && opts.BridgeScan != nil {
		reportBridges(opts.BridgeScan)
	}
	return a, nil
}

func reportBridges(scan func() ([]UsbBridge, error)) {
	bridges, err := scan()
	if err != nil {
		glog.Warningf("USB scan failed: %v", err)
		return
	}
	if len(bridges) == 0 {
		glog.Warning("No CH340 adapter found. Is the programmer plugged in?")
		return
	}
	for _, b := range bridges {
		glog.Warningf("%v is on the USB bus but has no serial port. Is the CH340 driver installed?", b)
	}
}

func (a *App) ConfigPath() string {
	return a.configPath
}

// Port is the detected adapter, or "" if none was found.
func (a *App) Port() string {
	return a.port
}

func (a *App) SessionLog() *SessionLog {
	return a.log
}

// Config returns a copy of the current configuration.
func (a *App) Config() Configuration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.config.clone()
}

func (c *Configuration) clone() Configuration {
	return Configuration{
		ProgrammerPath: c.ProgrammerPath,
		LogicFiles:     append([]FileEntry(nil), c.LogicFiles...),
		CounterFiles:   append([]FileEntry(nil), c.CounterFiles...),
	}
}

// Applies fn to a copy of the configuration, saves it and keeps it only if
// the save succeeded.
func (a *App) update(fn func(c *Configuration) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	next := a.config.clone()
	if err := fn(&next); err != nil {
		return err
	}
	if err := next.Save(a.configPath); err != nil {
		return err
	}
	a.config = &next
	return nil
}

// AddFile registers a HEX file under cat. The file must parse as Intel-HEX.
func (a *App) AddFile(cat Category, path string) (FileEntry, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return FileEntry{}, fmt.Errorf("resolving %s: %w", path, err)
	}
	img, err := util.LoadIntelHexFile(abs)
	if err != nil {
		return FileEntry{}, fmt.Errorf("%s: %w", abs, err)
	}
	entry := NewFileEntry(abs)
	if err = a.update(func(c *Configuration) error { return c.Add(cat, entry) }); err != nil {
		return FileEntry{}, err
	}
	glog.Infof("Added %s file %q: %v", cat, entry.Name, img)
	return entry, nil
}

// RemoveFile unregisters the file with the given path.
func (a *App) RemoveFile(cat Category, path string) error {
	if err := a.update(func(c *Configuration) error { return c.Remove(cat, path) }); err != nil {
		return err
	}
	glog.Infof("Removed %s file %s", cat, path)
	return nil
}

func (a *App) SetProgrammerPath(path string) error {
	return a.update(func(c *Configuration) error {
		c.ProgrammerPath = path
		return nil
	})
}

// Find looks an entry up by name or path.
func (a *App) Find(cat Category, nameOrPath string) (FileEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.config.Find(cat, nameOrPath)
}

// ReloadConfig replaces the in-memory configuration with the file contents.
func (a *App) ReloadConfig() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	config, err := LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	a.config = config
	glog.V(1).Infof("Reloaded configuration from %s", a.configPath)
	return nil
}

func (a *App) request(cat Category, entry FileEntry) Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Request{
		ProgrammerPath: a.config.ProgrammerPath,
		Port:           a.port,
		File:           entry.Path,
		Device:         cat.Device(),
	}
}

// Program flashes entry onto the device type of cat. See Programmer.Program.
func (a *App) Program(ctx context.Context, cat Category, entry FileEntry, onLine func(string)) *Result {
	return a.prog.Program(ctx, a.request(cat, entry), onLine)
}

// Stream is Program with channel delivery. See Programmer.Stream.
func (a *App) Stream(ctx context.Context, cat Category, entry FileEntry) (<-chan string, <-chan *Result) {
	return a.prog.Stream(ctx, a.request(cat, entry))
}
