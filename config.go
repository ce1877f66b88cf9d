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

// Persisted list of registered HEX files and the programmer path.
package gobbg

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
)

const (
	ConfigFileName = "BreadboarDGeniuSLogicProgrammer.xml"
	// Overrides the config file location.
	ConfigEnv = "BBG_CONFIG"
)

var (
	ErrDuplicateEntry = errors.New("file already registered")
	ErrEntryNotFound  = errors.New("file not registered")
)

// A registered HEX image.
type FileEntry struct {
	Name string `xml:"Name,attr" json:"name"`
	Path string `xml:",chardata" json:"path"`
}

// NewFileEntry names the entry after the file, without directory or extension.
func NewFileEntry(path string) FileEntry {
	base := filepath.Base(path)
	return FileEntry{
		Name: strings.TrimSuffix(base, filepath.Ext(base)),
		Path: path,
	}
}

type Configuration struct {
	ProgrammerPath string
	LogicFiles     []FileEntry
	CounterFiles   []FileEntry
}

// On-disk layout. The wrapper elements are always written, even when empty.
type fileList struct {
	Files []FileEntry `xml:"File"`
}

type xmlConfiguration struct {
	XMLName        xml.Name `xml:"Configuration"`
	ProgrammerPath string   `xml:"progPyPath"`
	Logic          fileList `xml:"LogicHexFiles"`
	Counter        fileList `xml:"CounterHexFiles"`
}

// DefaultConfigPath returns $BBG_CONFIG if set, else the config file name
// relative to the working directory.
func DefaultConfigPath() string {
	if p := os.Getenv(ConfigEnv); p != "" {
		return p
	}
	return ConfigFileName
}

// Files returns the list for category c.
func (c *Configuration) Files(cat Category) []FileEntry {
	if cat == CategoryCounter {
		return c.CounterFiles
	}
	return c.LogicFiles
}

func (c *Configuration) setFiles(cat Category, files []FileEntry) {
	if cat == CategoryCounter {
		c.CounterFiles = files
	} else {
		c.LogicFiles = files
	}
}

// Add appends entry to the category list. Paths are unique within a list.
func (c *Configuration) Add(cat Category, entry FileEntry) error {
	for _, e := range c.Files(cat) {
		if e.Path == entry.Path {
			return fmt.Errorf("%s %q: %w", cat, entry.Path, ErrDuplicateEntry)
		}
	}
	c.setFiles(cat, append(c.Files(cat), entry))
	return nil
}

// Remove deletes the entry with the given path.
func (c *Configuration) Remove(cat Category, path string) error {
	files := c.Files(cat)
	for i, e := range files {
		if e.Path == path {
			kept := make([]FileEntry, 0, len(files)-1)
			kept = append(kept, files[:i]...)
			kept = append(kept, files[i+1:]...)
			c.setFiles(cat, kept)
			return nil
		}
	}
	return fmt.Errorf("%s %q: %w", cat, path, ErrEntryNotFound)
}

// Find looks an entry up by name, falling back to path.
func (c *Configuration) Find(cat Category, nameOrPath string) (FileEntry, error) {
	files := c.Files(cat)
	for _, e := range files {
		if e.Name == nameOrPath {
			return e, nil
		}
	}
	for _, e := range files {
		if e.Path == nameOrPath {
			return e, nil
		}
	}
	return FileEntry{}, fmt.Errorf("%s %q: %w", cat, nameOrPath, ErrEntryNotFound)
}

// Hand-edited files may put a value on its own indented line. Only that
// layout is trimmed; spaces inside a single-line value are part of the path.
func elementText(s string) string {
	if strings.ContainsAny(s, "\r\n") {
		return strings.TrimSpace(s)
	}
	return s
}

// Exported for testing.
func LoadConfigIo(src io.Reader) (*Configuration, error) {
	var doc xmlConfiguration
	if err := xml.NewDecoder(src).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	for _, files := range [][]FileEntry{doc.Logic.Files, doc.Counter.Files} {
		for i := range files {
			files[i].Path = elementText(files[i].Path)
		}
	}
	return &Configuration{
		ProgrammerPath: elementText(doc.ProgrammerPath),
		LogicFiles:     doc.Logic.Files,
		CounterFiles:   doc.Counter.Files,
	}, nil
}

// LoadConfig reads the configuration file. A missing file yields an empty
// configuration.
func LoadConfig(filename string) (*Configuration, error) {
	f, err := os.Open(filename)
	if os.IsNotExist(err) {
		glog.V(1).Infof("No configuration at %s, starting empty", filename)
		return &Configuration{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening configuration: %w", err)
	}
	defer f.Close()
	return LoadConfigIo(f)
}

// Exported for testing.
func (c *Configuration) SaveIo(dst io.Writer) error {
	doc := xmlConfiguration{
		ProgrammerPath: c.ProgrammerPath,
		Logic:          fileList{c.LogicFiles},
		Counter:        fileList{c.CounterFiles},
	}
	if err := xml.NewEncoder(dst).Encode(&doc); err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}
	return nil
}

// Save rewrites the whole file. The new content is written next to the
// target and renamed over it.
func (c *Configuration) Save(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(filename)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err = c.SaveIo(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temp config: %w", err)
	}
	if err = os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("replacing configuration: %w", err)
	}
	glog.V(1).Infof("Saved configuration to %s", filename)
	return nil
}
