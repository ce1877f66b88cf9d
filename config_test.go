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
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/gobbg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleConfig() *gobbg.Configuration {
	return &gobbg.Configuration{
		ProgrammerPath: "/opt/pyupdi/prog.py",
		LogicFiles: []gobbg.FileEntry{
			{Name: "AND", Path: "/hex/AND.hex"},
			{Name: "NAND", Path: "/hex/NAND.hex"},
			{Name: "XOR & friends", Path: "/hex/<odd> name.hex"},
		},
		CounterFiles: []gobbg.FileEntry{
			{Name: "UP", Path: "/hex/counter/UP.hex"},
		},
	}
}

func TestConfigSaveLoad(t *testing.T) {
	c1 := sampleConfig()
	buf := bytes.Buffer{}
	require.NoError(t, c1.SaveIo(&buf))

	c2, err := gobbg.LoadConfigIo(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, c1, c2)
}

func TestConfigSaveLoadKeepsEdgeSpaces(t *testing.T) {
	c1 := &gobbg.Configuration{
		ProgrammerPath: "/opt/prog.py ",
		LogicFiles:     []gobbg.FileEntry{{Name: "A", Path: " /hex/A.hex"}},
		CounterFiles:   []gobbg.FileEntry{{Name: "B", Path: "/hex/B.hex  "}},
	}
	buf := bytes.Buffer{}
	require.NoError(t, c1.SaveIo(&buf))

	c2, err := gobbg.LoadConfigIo(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, c1, c2)
}

func TestConfigSaveLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", gobbg.ConfigFileName)
	c1 := sampleConfig()
	require.NoError(t, c1.Save(path))

	c2, err := gobbg.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, c1, c2)

	// Nothing left behind by the temp-file write.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestConfigSaveWritesEmptyLists(t *testing.T) {
	c := &gobbg.Configuration{}
	buf := bytes.Buffer{}
	require.NoError(t, c.SaveIo(&buf))
	assert.Contains(t, buf.String(), "<LogicHexFiles></LogicHexFiles>")
	assert.Contains(t, buf.String(), "<CounterHexFiles></CounterHexFiles>")
}

func TestLoadConfigMissingFile(t *testing.T) {
	c, err := gobbg.LoadConfig(filepath.Join(t.TempDir(), "absent.xml"))
	require.NoError(t, err)
	assert.Equal(t, "", c.ProgrammerPath)
	assert.Empty(t, c.LogicFiles)
	assert.Empty(t, c.CounterFiles)
}

func TestLoadConfigIndented(t *testing.T) {
	doc := `<Configuration>
  <progPyPath>
    C:\pyupdi\prog.py
  </progPyPath>
  <LogicHexFiles>
    <File Name="OR">
      C:\hex\OR.hex
    </File>
  </LogicHexFiles>
  <CounterHexFiles />
</Configuration>`
	c, err := gobbg.LoadConfigIo(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, `C:\pyupdi\prog.py`, c.ProgrammerPath)
	assert.Equal(t, []gobbg.FileEntry{{Name: "OR", Path: `C:\hex\OR.hex`}}, c.LogicFiles)
	assert.Empty(t, c.CounterFiles)
}

func TestLoadConfigMalformed(t *testing.T) {
	_, err := gobbg.LoadConfigIo(strings.NewReader("<Configuration><progPyPath>"))
	assert.Error(t, err)
}

func TestConfigAddRejectsDuplicatePath(t *testing.T) {
	c := sampleConfig()
	err := c.Add(gobbg.CategoryLogic, gobbg.FileEntry{Name: "other", Path: "/hex/AND.hex"})
	assert.True(t, errors.Is(err, gobbg.ErrDuplicateEntry), "err = %v", err)

	// Same path in the other category is fine.
	require.NoError(t, c.Add(gobbg.CategoryCounter, gobbg.FileEntry{Name: "AND", Path: "/hex/AND.hex"}))
	assert.Len(t, c.CounterFiles, 2)
}

func TestConfigRemove(t *testing.T) {
	c := sampleConfig()
	require.NoError(t, c.Remove(gobbg.CategoryLogic, "/hex/NAND.hex"))
	assert.Equal(t, []string{"AND", "XOR & friends"}, names(c.LogicFiles))

	err := c.Remove(gobbg.CategoryLogic, "/hex/NAND.hex")
	assert.True(t, errors.Is(err, gobbg.ErrEntryNotFound))
}

func TestConfigFind(t *testing.T) {
	c := sampleConfig()
	e, err := c.Find(gobbg.CategoryCounter, "UP")
	require.NoError(t, err)
	assert.Equal(t, "/hex/counter/UP.hex", e.Path)

	e, err = c.Find(gobbg.CategoryLogic, "/hex/NAND.hex")
	require.NoError(t, err)
	assert.Equal(t, "NAND", e.Name)

	_, err = c.Find(gobbg.CategoryCounter, "AND")
	assert.True(t, errors.Is(err, gobbg.ErrEntryNotFound))
}

func TestNewFileEntry(t *testing.T) {
	e := gobbg.NewFileEntry(filepath.Join("some", "dir", "Universal Logic Gate.hex"))
	assert.Equal(t, "Universal Logic Gate", e.Name)
}

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv(gobbg.ConfigEnv, "")
	assert.Equal(t, gobbg.ConfigFileName, gobbg.DefaultConfigPath())
	t.Setenv(gobbg.ConfigEnv, "/tmp/custom.xml")
	assert.Equal(t, "/tmp/custom.xml", gobbg.DefaultConfigPath())
}

func names(files []gobbg.FileEntry) []string {
	var out []string
	for _, f := range files {
		out = append(out, f.Name)
	}
	return out
}
