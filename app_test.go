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

package gobbg_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/gobbg"
	"github.com/google/gobbg/mocks"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validHex = ":0400000001020304F2\n:00000001FF\n"

type appFixture struct {
	dir        string
	configPath string
	runner     *mocks.MockRunner
	app        *gobbg.App
}

func newAppFixture(t *testing.T, ports []gobbg.PortInfo, scan func() ([]gobbg.UsbBridge, error)) *appFixture {
	ctrl := gomock.NewController(t)
	enum := mocks.NewMockPortEnumerator(ctrl)
	enum.EXPECT().Ports().Return(ports, nil)
	runner := mocks.NewMockRunner(ctrl)

	dir := t.TempDir()
	configPath := filepath.Join(dir, gobbg.ConfigFileName)
	app, err := gobbg.NewApp(gobbg.Options{
		ConfigPath: configPath,
		SessionDir: dir,
		Enumerator: enum,
		Runner:     runner,
		BridgeScan: scan,
	})
	require.NoError(t, err)
	return &appFixture{dir, configPath, runner, app}
}

func (f *appFixture) writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

var ch340 = []gobbg.PortInfo{{Device: "COM3", Description: "USB-SERIAL CH340 (COM3)"}}

func TestNewAppDetectsPort(t *testing.T) {
	f := newAppFixture(t, ch340, func() ([]gobbg.UsbBridge, error) {
		t.Error("USB scan with a port present")
		return nil, nil
	})
	assert.Equal(t, "COM3", f.app.Port())
	assert.Equal(t, f.configPath, f.app.ConfigPath())
	assert.Equal(t, gobbg.Configuration{}, f.app.Config())
}

func TestNewAppScansUsbWithoutPort(t *testing.T) {
	scanned := false
	f := newAppFixture(t, nil, func() ([]gobbg.UsbBridge, error) {
		scanned = true
		return nil, errors.New("no usb access")
	})
	assert.Equal(t, "", f.app.Port())
	assert.True(t, scanned)
}

func TestAddFilePersists(t *testing.T) {
	f := newAppFixture(t, ch340, nil)
	path := f.writeFile(t, "XOR.hex", validHex)

	entry, err := f.app.AddFile(gobbg.CategoryLogic, path)
	require.NoError(t, err)
	assert.Equal(t, gobbg.FileEntry{Name: "XOR", Path: path}, entry)

	_, err = f.app.AddFile(gobbg.CategoryLogic, path)
	assert.True(t, errors.Is(err, gobbg.ErrDuplicateEntry), "%v", err)

	// Same file may also be registered as a counter image.
	_, err = f.app.AddFile(gobbg.CategoryCounter, path)
	require.NoError(t, err)

	saved, err := gobbg.LoadConfig(f.configPath)
	require.NoError(t, err)
	assert.Equal(t, []gobbg.FileEntry{entry}, saved.LogicFiles)
	assert.Equal(t, []gobbg.FileEntry{entry}, saved.CounterFiles)
}

func TestAddFileRejectsNonHex(t *testing.T) {
	f := newAppFixture(t, ch340, nil)
	path := f.writeFile(t, "notes.hex", "hello\n")

	_, err := f.app.AddFile(gobbg.CategoryLogic, path)
	assert.Error(t, err)
	assert.Empty(t, f.app.Config().LogicFiles)
	_, err = os.Stat(f.configPath)
	assert.True(t, os.IsNotExist(err), "config written after a rejected add")
}

func TestRemoveFilePersists(t *testing.T) {
	f := newAppFixture(t, ch340, nil)
	and, err := f.app.AddFile(gobbg.CategoryLogic, f.writeFile(t, "AND.hex", validHex))
	require.NoError(t, err)
	or, err := f.app.AddFile(gobbg.CategoryLogic, f.writeFile(t, "OR.hex", validHex))
	require.NoError(t, err)

	require.NoError(t, f.app.RemoveFile(gobbg.CategoryLogic, and.Path))
	assert.True(t, errors.Is(f.app.RemoveFile(gobbg.CategoryLogic, and.Path), gobbg.ErrEntryNotFound))

	saved, err := gobbg.LoadConfig(f.configPath)
	require.NoError(t, err)
	assert.Equal(t, []gobbg.FileEntry{or}, saved.LogicFiles)
}

func TestConfigReturnsCopy(t *testing.T) {
	f := newAppFixture(t, ch340, nil)
	_, err := f.app.AddFile(gobbg.CategoryLogic, f.writeFile(t, "AND.hex", validHex))
	require.NoError(t, err)

	c := f.app.Config()
	c.LogicFiles[0].Name = "changed"
	assert.Equal(t, "AND", f.app.Config().LogicFiles[0].Name)
}

func TestReloadConfig(t *testing.T) {
	f := newAppFixture(t, ch340, nil)
	require.NoError(t, os.WriteFile(f.configPath, []byte(`<Configuration>
  <progPyPath>/opt/prog.py</progPyPath>
  <LogicHexFiles></LogicHexFiles>
  <CounterHexFiles><File Name="UP">/hex/UP.hex</File></CounterHexFiles>
</Configuration>`), 0644))

	require.NoError(t, f.app.ReloadConfig())
	assert.Equal(t, "/opt/prog.py", f.app.Config().ProgrammerPath)
	entry, err := f.app.Find(gobbg.CategoryCounter, "UP")
	require.NoError(t, err)
	assert.Equal(t, "/hex/UP.hex", entry.Path)
}

func TestAppProgram(t *testing.T) {
	f := newAppFixture(t, ch340, nil)
	prog := f.writeFile(t, "prog.py", "# prog.py\n")
	require.NoError(t, f.app.SetProgrammerPath(prog))
	entry, err := f.app.AddFile(gobbg.CategoryCounter, f.writeFile(t, "UP.hex", validHex))
	require.NoError(t, err)

	f.runner.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, args []string, onLine func(string)) (int, error) {
			joined := strings.Join(args, " ")
			assert.Contains(t, joined, "-u COM3")
			assert.Contains(t, joined, "-d atmega4809")
			assert.Contains(t, joined, "-f "+entry.Path)
			onLine("Device family ID: 'megaAVR'")
			return 0, nil
		})

	res := f.app.Program(context.Background(), gobbg.CategoryCounter, entry, nil)
	require.Equal(t, gobbg.OutcomeSuccess, res.Outcome, "%v", res.Err)
	assert.Equal(t, "megaAVR", res.Record.FamilyID)
	assert.Equal(t, filepath.Join(f.dir, "packdata1.txt"), f.app.SessionLog().Filename())
}

func TestAppProgramWithoutProgrammer(t *testing.T) {
	f := newAppFixture(t, ch340, nil)
	entry, err := f.app.AddFile(gobbg.CategoryLogic, f.writeFile(t, "AND.hex", validHex))
	require.NoError(t, err)

	res := f.app.Program(context.Background(), gobbg.CategoryLogic, entry, nil)
	assert.Equal(t, gobbg.OutcomeConfigError, res.Outcome)
	assert.True(t, errors.Is(res.Err, gobbg.ErrProgrammerMissing))
	assert.Equal(t, "", f.app.SessionLog().Filename())
}

func TestReloadDuringUpdatesKeepsSavedFiles(t *testing.T) {
	f := newAppFixture(t, ch340, nil)
	const n = 20
	var paths []string
	for i := 0; i < n; i++ {
		paths = append(paths, f.writeFile(t, fmt.Sprintf("G%d.hex", i), validHex))
	}

	stop := make(chan struct{})
	reloaded := make(chan struct{})
	go func() {
		defer close(reloaded)
		for {
			select {
			case <-stop:
				return
			default:
				if err := f.app.ReloadConfig(); err != nil {
					t.Error(err)
					return
				}
			}
		}
	}()
	for _, p := range paths {
		_, err := f.app.AddFile(gobbg.CategoryLogic, p)
		require.NoError(t, err)
	}
	close(stop)
	<-reloaded

	assert.Len(t, f.app.Config().LogicFiles, n)
}
