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

// Package report reads session logs back and exports them as spreadsheets.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/google/gobbg"

	"github.com/golang/glog"
	"github.com/xuri/excelize/v2"
)

var lineRe = regexp.MustCompile(
	`^Device family ID: (.*), Device ID: (.*), Device serial number: (.*), Device revision: (.*?), (.*)$`)

// ParseLog reads session log lines. Lines that don't match the record format
// are skipped and counted.
func ParseLog(src io.Reader) (records []gobbg.AttemptRecord, skipped int, err error) {
	sc := bufio.NewScanner(src)
	for sc.Scan() {
		m := lineRe.FindStringSubmatch(sc.Text())
		if m == nil {
			if sc.Text() != "" {
				skipped++
			}
			continue
		}
		records = append(records, gobbg.AttemptRecord{
			FamilyID:     m[1],
			DeviceID:     m[2],
			SerialNumber: m[3],
			Revision:     m[4],
			Option:       m[5],
		})
	}
	if err = sc.Err(); err != nil {
		return nil, skipped, fmt.Errorf("reading session log: %w", err)
	}
	return records, skipped, nil
}

// Records of one session log.
type Sheet struct {
	Name    string
	Records []gobbg.AttemptRecord
}

// LoadLogFile parses a session log into a sheet named after the file.
func LoadLogFile(filename string) (Sheet, error) {
	f, err := os.Open(filename)
	if err != nil {
		return Sheet{}, err
	}
	defer f.Close()
	records, skipped, err := ParseLog(f)
	if err != nil {
		return Sheet{}, err
	}
	if skipped > 0 {
		glog.Warningf("%s: skipped %d malformed lines", filename, skipped)
	}
	base := filepath.Base(filename)
	return Sheet{base[:len(base)-len(filepath.Ext(base))], records}, nil
}

// FindLogFiles returns the session logs in dir, oldest session first.
func FindLogFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && gobbg.IsLogFilename(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Slice(files, func(i, j int) bool {
		return logIndex(files[i]) < logIndex(files[j])
	})
	return files, nil
}

func logIndex(path string) int {
	var n int
	fmt.Sscanf(filepath.Base(path), "packdata%d.txt", &n)
	return n
}

var header = []interface{}{"#", "Device family ID", "Device ID", "Device serial number", "Device revision", "File"}

const summarySheet = "Summary"

// WriteWorkbook writes one worksheet per session plus a per-file summary.
func WriteWorkbook(dst io.Writer, sheets []Sheet) error {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("NewStyle failed: %v", err)
	}

	sheets = uniqueSheetNames(sheets)
	if err = f.SetSheetName("Sheet1", summarySheet); err != nil {
		return err
	}
	if err = writeSummary(f, bold, sheets); err != nil {
		return err
	}

	for _, s := range sheets {
		if _, err = f.NewSheet(s.Name); err != nil {
			return fmt.Errorf("NewSheet %s: %v", s.Name, err)
		}
		if err = writeRow(f, s.Name, 1, header, bold); err != nil {
			return err
		}
		for i, r := range s.Records {
			row := []interface{}{i + 1, r.FamilyID, r.DeviceID, r.SerialNumber, r.Revision, r.Option}
			if err = writeRow(f, s.Name, i+2, row, 0); err != nil {
				return err
			}
		}
		if err = f.SetColWidth(s.Name, "B", "F", 22); err != nil {
			return err
		}
	}

	if _, err = f.WriteTo(dst); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

// Sheet names are case-insensitive in a workbook. Logs from different
// directories often share a name, so repeats get a " (N)" suffix.
func uniqueSheetNames(sheets []Sheet) []Sheet {
	out := make([]Sheet, len(sheets))
	used := map[string]bool{strings.ToLower(summarySheet): true}
	for i, s := range sheets {
		name := s.Name
		for n := 2; used[strings.ToLower(name)]; n++ {
			name = fmt.Sprintf("%s (%d)", s.Name, n)
		}
		if name != s.Name {
			glog.Warningf("Sheet %q already used, writing as %q", s.Name, name)
		}
		used[strings.ToLower(name)] = true
		out[i] = Sheet{name, s.Records}
	}
	return out
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}, style int) error {
	start, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err = f.SetSheetRow(sheet, start, &values); err != nil {
		return fmt.Errorf("SetSheetRow %s!%s: %v", sheet, start, err)
	}
	if style == 0 {
		return nil
	}
	end, err := excelize.CoordinatesToCellName(len(values), row)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, start, end, style)
}

// Attempts and distinct serial numbers per HEX file over all sessions.
func writeSummary(f *excelize.File, bold int, sheets []Sheet) error {
	type stats struct {
		attempts int
		serials  map[string]struct{}
	}
	byFile := map[string]*stats{}
	var order []string
	for _, s := range sheets {
		for _, r := range s.Records {
			st, ok := byFile[r.Option]
			if !ok {
				st = &stats{serials: map[string]struct{}{}}
				byFile[r.Option] = st
				order = append(order, r.Option)
			}
			st.attempts++
			if r.SerialNumber != gobbg.NotFound {
				st.serials[r.SerialNumber] = struct{}{}
			}
		}
	}

	if err := writeRow(f, summarySheet, 1, []interface{}{"File", "Attempts", "Devices"}, bold); err != nil {
		return err
	}
	for i, name := range order {
		st := byFile[name]
		if err := writeRow(f, summarySheet, i+2, []interface{}{name, st.attempts, len(st.serials)}, 0); err != nil {
			return err
		}
	}
	return f.SetColWidth(summarySheet, "A", "A", 30)
}
