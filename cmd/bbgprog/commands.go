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

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/gobbg"
	"github.com/google/gobbg/report"
	"github.com/google/gobbg/util"
)

func runProgram(app *gobbg.App, args []string) error {
	cat, err := gobbg.ParseCategory(args[0])
	if err != nil {
		return err
	}
	entry, err := app.Find(cat, args[1])
	if err != nil {
		return err
	}

	fmt.Printf("Programming %s (%s) on %s\n", entry.Name, cat.Device(), app.Port())
	res := app.Program(context.Background(), cat, entry, func(line string) {
		fmt.Println(line)
	})
	if res.Record != nil {
		fmt.Printf("Logged to %s\n", app.SessionLog().Filename())
	}
	if !res.OK() {
		return fmt.Errorf("%s: %s", res.Title(), res.Message())
	}
	fmt.Println(res.Message())
	return nil
}

func runInfo(_ *gobbg.App, args []string) error {
	img, err := util.LoadIntelHexFile(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s: %v\n", args[0], img)
	for _, s := range img.Segments {
		fmt.Printf("  0x%04x  %d bytes\n", s.Address, len(s.Data))
	}
	if img.HasStart {
		fmt.Printf("  start address 0x%08x\n", img.StartAddress)
	}
	return nil
}

func runExport(app *gobbg.App, args []string) error {
	out, logs := args[0], args[1:]
	if len(logs) == 0 {
		var err error
		if logs, err = report.FindLogFiles(app.SessionLog().Dir()); err != nil {
			return err
		}
	}
	if len(logs) == 0 {
		return fmt.Errorf("no session logs in %s", app.SessionLog().Dir())
	}

	var sheets []report.Sheet
	for _, l := range logs {
		s, err := report.LoadLogFile(l)
		if err != nil {
			return err
		}
		sheets = append(sheets, s)
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err = report.WriteWorkbook(f, sheets); err != nil {
		f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	fmt.Printf("Exported %d session logs to %s\n", len(sheets), out)
	return nil
}
