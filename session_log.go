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

// Append-only record of programming attempts.
package gobbg

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/golang/glog"
)

const (
	NotFound = "Not found"

	logFilePrefix = "packdata"
	logFileExt    = ".txt"

	markerSerial   = "Device serial number:"
	markerDeviceID = "Device ID:"
	markerRevision = "Device revision:"
	markerFamilyID = "Device family ID:"
)

// Device identity reported by the programmer for one attempt.
type AttemptRecord struct {
	FamilyID     string `json:"familyId"`
	DeviceID     string `json:"deviceId"`
	SerialNumber string `json:"serialNumber"`
	Revision     string `json:"revision"`
	// HEX file used for the attempt.
	Option string `json:"option"`
}

// Line formats the record the way it is stored in the session log.
func (r AttemptRecord) Line() string {
	return fmt.Sprintf("%s %s, %s %s, %s %s, %s %s, %s",
		markerFamilyID, r.FamilyID,
		markerDeviceID, r.DeviceID,
		markerSerial, r.SerialNumber,
		markerRevision, r.Revision,
		r.Option)
}

// Returns the text between the first pair of single quotes.
func quoted(line string) (string, bool) {
	parts := strings.SplitN(line, "'", 3)
	if len(parts) < 2 {
		return "", false
	}
	return parts[1], true
}

// ParseAttemptRecord extracts the device identity from programmer output.
// Later occurrences of a marker win. Missing fields read "Not found".
func ParseAttemptRecord(option, output string) AttemptRecord {
	r := AttemptRecord{NotFound, NotFound, NotFound, NotFound, option}
	sc := bufio.NewScanner(strings.NewReader(output))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		var field *string
		switch {
		case strings.Contains(line, markerSerial):
			r.SerialNumber = strings.TrimSpace(line[strings.LastIndex(line, ":")+1:])
			continue
		case strings.Contains(line, markerDeviceID):
			field = &r.DeviceID
		case strings.Contains(line, markerRevision):
			field = &r.Revision
		case strings.Contains(line, markerFamilyID):
			field = &r.FamilyID
		default:
			continue
		}
		if v, ok := quoted(line); ok {
			*field = v
		} else {
			glog.V(1).Infof("Marker line without quoted value: %q", line)
		}
	}
	return r
}

// NextLogFilename returns the first packdataN.txt (N >= 1) absent from dir.
// Fails if dir cannot be searched.
func NextLogFilename(dir string) (string, error) {
	for i := 1; ; i++ {
		name := filepath.Join(dir, fmt.Sprintf("%s%d%s", logFilePrefix, i, logFileExt))
		_, err := os.Stat(name)
		switch {
		case err == nil:
		case os.IsNotExist(err):
			return name, nil
		default:
			return "", fmt.Errorf("choosing session log name: %w", err)
		}
	}
}

// IsLogFilename reports whether base looks like a session log name.
func IsLogFilename(base string) bool {
	if !strings.HasPrefix(base, logFilePrefix) || !strings.HasSuffix(base, logFileExt) {
		return false
	}
	n := strings.TrimSuffix(strings.TrimPrefix(base, logFilePrefix), logFileExt)
	if n == "" {
		return false
	}
	for _, c := range n {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// One log file per SessionLog. The file name is picked on the first append
// and kept for the lifetime of the SessionLog.
type SessionLog struct {
	dir string

	mu       sync.Mutex
	filename string
}

func NewSessionLog(dir string) *SessionLog {
	return &SessionLog{dir: dir}
}

func (s *SessionLog) Dir() string {
	return s.dir
}

// Filename returns the chosen file, or "" before the first append.
func (s *SessionLog) Filename() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filename
}

// Append parses output and appends one record line.
func (s *SessionLog) Append(option, output string) (AttemptRecord, error) {
	rec := ParseAttemptRecord(option, output)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filename == "" {
		name, err := NextLogFilename(s.dir)
		if err != nil {
			return rec, err
		}
		s.filename = name
		glog.Infof("Session log: %s", s.filename)
	}

	f, err := os.OpenFile(s.filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return rec, fmt.Errorf("opening session log: %w", err)
	}
	if _, err = fmt.Fprintln(f, rec.Line()); err != nil {
		f.Close()
		return rec, fmt.Errorf("writing session log: %w", err)
	}
	if err = f.Close(); err != nil {
		return rec, fmt.Errorf("closing session log: %w", err)
	}
	return rec, nil
}
