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

// Flashes BreadboarD GeniuS logic gate and counter chips and manages the list
// of registered HEX files.
//
// Usage:
//   bbgprog [flags] list
//   bbgprog [flags] ports
//   bbgprog [flags] add <logic|counter> <file.hex>
//   bbgprog [flags] remove <logic|counter> <name|path>
//   bbgprog [flags] set-programmer <path/to/prog.py>
//   bbgprog [flags] program <logic|counter> <name>
//   bbgprog [flags] info <file.hex>
//   bbgprog [flags] export <out.xlsx> [packdataN.txt ...]
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/google/gobbg"

	"github.com/golang/glog"
)

var (
	configFlag  = flag.String("config", "", "Configuration file (default $BBG_CONFIG, else ./"+gobbg.ConfigFileName+")")
	sessionFlag = flag.String("session_dir", "", "Directory for packdataN.txt session logs (default: working directory)")
	pythonFlag  = flag.String("python", "", "Interpreter used to run prog.py (default "+gobbg.DefaultPython()+")")
	ptyFlag     = flag.Bool("pty", runtime.GOOS != "windows", "Run the programmer on a pseudo-terminal so output streams live")
	usbScanFlag = flag.Bool("usb_scan", true, "Scan the USB bus for CH34x bridges when no serial port matches")
)

type command struct {
	usage string
	nargs int
	// Commands that don't touch the configuration still get an App, so the
	// port is detected the same way everywhere.
	run func(app *gobbg.App, args []string) error
}

var commands = map[string]command{
	"list":           {"list", 0, runList},
	"ports":          {"ports", 0, runPorts},
	"add":            {"add <logic|counter> <file.hex>", 2, runAdd},
	"remove":         {"remove <logic|counter> <name|path>", 2, runRemove},
	"set-programmer": {"set-programmer <path/to/prog.py>", 1, runSetProgrammer},
	"program":        {"program <logic|counter> <name>", 2, runProgram},
	"info":           {"info <file.hex>", 1, runInfo},
	"export":         {"export <out.xlsx> [packdataN.txt ...]", -1, runExport},
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <command> [args]\n\nCommands:\n", os.Args[0])
	var names []string
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(flag.CommandLine.Output(), "  %s\n", commands[name].usage)
	}
	fmt.Fprintf(flag.CommandLine.Output(), "\nFlags:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	defer glog.Flush()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	name, args := flag.Arg(0), flag.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", name)
		usage()
		os.Exit(2)
	}
	if cmd.nargs >= 0 && len(args) != cmd.nargs || cmd.nargs < 0 && len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s %s\n", os.Args[0], cmd.usage)
		os.Exit(2)
	}

	opts := gobbg.Options{
		ConfigPath: *configFlag,
		SessionDir: *sessionFlag,
		Python:     *pythonFlag,
		UsePty:     *ptyFlag,
	}
	if *usbScanFlag {
		opts.BridgeScan = gobbg.FindUsbBridges
	}
	app, err := gobbg.NewApp(opts)
	if err != nil {
		glog.Exitf("Failed to start: %v", err)
	}

	if err = cmd.run(app, args); err != nil {
		glog.Flush()
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(1)
	}
}

func portStatus(app *gobbg.App) string {
	if app.Port() == "" {
		return "COM Port: Not found"
	}
	return "COM Port: " + app.Port()
}

func runList(app *gobbg.App, _ []string) error {
	c := app.Config()
	fmt.Println(portStatus(app))
	programmer := c.ProgrammerPath
	if programmer == "" {
		programmer = "(not set)"
	}
	fmt.Printf("Programmer: %s\n", programmer)
	for _, cat := range gobbg.Categories {
		fmt.Printf("\n%s\n", cat.Title())
		files := c.Files(cat)
		if len(files) == 0 {
			fmt.Println("  (none)")
		}
		for _, e := range files {
			fmt.Printf("  %-24s %s\n", e.Name, e.Path)
		}
	}
	return nil
}

func runPorts(app *gobbg.App, _ []string) error {
	ports, err := gobbg.SerialEnumerator{}.Ports()
	if err != nil {
		return err
	}
	for _, p := range ports {
		mark := " "
		if p.Device == app.Port() {
			mark = "*"
		}
		fmt.Printf("%s %-16s %s\n", mark, p.Device, p.Description)
	}
	if *usbScanFlag {
		bridges, err := gobbg.FindUsbBridges()
		if err != nil {
			glog.Warningf("USB scan failed: %v", err)
		}
		for _, b := range bridges {
			fmt.Printf("USB: %v\n", b)
		}
	}
	fmt.Println(portStatus(app))
	return nil
}

func runAdd(app *gobbg.App, args []string) error {
	cat, err := gobbg.ParseCategory(args[0])
	if err != nil {
		return err
	}
	if !strings.EqualFold(filepath.Ext(args[1]), ".hex") {
		return fmt.Errorf("%s: expected a .hex file", args[1])
	}
	entry, err := app.AddFile(cat, args[1])
	if err != nil {
		return err
	}
	fmt.Printf("Added %q to %s\n", entry.Name, cat.Title())
	return nil
}

func runRemove(app *gobbg.App, args []string) error {
	cat, err := gobbg.ParseCategory(args[0])
	if err != nil {
		return err
	}
	entry, err := app.Find(cat, args[1])
	if err != nil {
		return err
	}
	return app.RemoveFile(cat, entry.Path)
}

func runSetProgrammer(app *gobbg.App, args []string) error {
	if _, err := os.Stat(args[0]); err != nil {
		glog.Warningf("Programmer path %s: %v", args[0], err)
	}
	return app.SetProgrammerPath(args[0])
}
