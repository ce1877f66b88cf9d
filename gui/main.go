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

// Desktop front end: one panel of HEX files per chip family, a live console
// and result dialogs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"runtime"
	"strings"

	"github.com/google/gobbg"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/golang/glog"
)

var (
	configFlag  = flag.String("config", "", "Configuration file (default $BBG_CONFIG, else ./"+gobbg.ConfigFileName+")")
	sessionFlag = flag.String("session_dir", "", "Directory for packdataN.txt session logs (default: working directory)")
	pythonFlag  = flag.String("python", "", "Interpreter used to run prog.py (default "+gobbg.DefaultPython()+")")
	ptyFlag     = flag.Bool("pty", runtime.GOOS != "windows", "Run the programmer on a pseudo-terminal so output streams live")
)

// Keeps the console from growing without bound over a long session.
const maxConsoleLines = 5000

type ui struct {
	app *gobbg.App
	win fyne.Window

	panels  *fyne.Container
	console *widget.Label
	scroll  *container.Scroll
	lines   []string

	// Disabled while an attempt is running.
	buttons []*widget.Button
	busy    bool
}

func (u *ui) appendLine(line string) {
	u.lines = append(u.lines, line)
	if len(u.lines) > maxConsoleLines {
		u.lines = u.lines[len(u.lines)-maxConsoleLines:]
	}
	u.console.SetText(strings.Join(u.lines, "\n"))
	u.scroll.ScrollToBottom()
}

func (u *ui) setBusy(busy bool) {
	u.busy = busy
	for _, b := range u.buttons {
		if busy {
			b.Disable()
		} else {
			b.Enable()
		}
	}
}

func (u *ui) button(label string, tapped func()) *widget.Button {
	b := widget.NewButton(label, tapped)
	u.buttons = append(u.buttons, b)
	if u.busy {
		b.Disable()
	}
	return b
}

func (u *ui) showResult(res *gobbg.Result) {
	if res.OK() {
		dialog.ShowInformation(res.Title(), res.Message(), u.win)
		return
	}
	dialog.ShowError(errors.New(res.Message()), u.win)
}

func (u *ui) program(cat gobbg.Category, entry gobbg.FileEntry) {
	u.setBusy(true)
	u.appendLine(fmt.Sprintf(">>> %s (%s)", entry.Name, cat.Device()))

	lines, done := u.app.Stream(context.Background(), cat, entry)
	go func() {
		for line := range lines {
			fyne.Do(func() { u.appendLine(line) })
		}
		res := <-done
		fyne.Do(func() {
			u.setBusy(false)
			u.showResult(res)
		})
	}()
}

func (u *ui) addFile(cat gobbg.Category) {
	d := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil {
			dialog.ShowError(err, u.win)
			return
		}
		if reader == nil {
			return
		}
		path := reader.URI().Path()
		reader.Close()
		if _, err = u.app.AddFile(cat, path); err != nil {
			dialog.ShowError(err, u.win)
			return
		}
		u.refresh()
	}, u.win)
	d.SetFilter(storage.NewExtensionFileFilter([]string{".hex"}))
	d.Show()
}

func (u *ui) setProgrammer() {
	d := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil {
			dialog.ShowError(err, u.win)
			return
		}
		if reader == nil {
			return
		}
		path := reader.URI().Path()
		reader.Close()
		if err = u.app.SetProgrammerPath(path); err != nil {
			dialog.ShowError(err, u.win)
			return
		}
		u.refresh()
	}, u.win)
	d.SetFilter(storage.NewExtensionFileFilter([]string{".py"}))
	d.Show()
}

func (u *ui) section(cat gobbg.Category, files []gobbg.FileEntry) fyne.CanvasObject {
	rows := container.NewVBox()
	for _, entry := range files {
		run := u.button(entry.Name, func() { u.program(cat, entry) })
		remove := u.button("X", func() {
			if err := u.app.RemoveFile(cat, entry.Path); err != nil {
				dialog.ShowError(err, u.win)
				return
			}
			u.refresh()
		})
		remove.Importance = widget.DangerImportance
		rows.Add(container.NewBorder(nil, nil, nil, remove, container.NewHBox(run)))
	}
	add := u.button("Add HEX", func() { u.addFile(cat) })
	add.SetIcon(theme.ContentAddIcon())

	title := widget.NewLabelWithStyle(cat.Title(), fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
	return container.NewBorder(title, add, nil, nil, container.NewVScroll(rows))
}

// Rebuilds both panels from the current configuration.
func (u *ui) refresh() {
	u.buttons = nil
	c := u.app.Config()
	u.panels.Objects = []fyne.CanvasObject{
		u.section(gobbg.CategoryLogic, c.LogicFiles),
		u.section(gobbg.CategoryCounter, c.CounterFiles),
	}
	u.panels.Refresh()
}

func (u *ui) build() fyne.CanvasObject {
	port := "Not found"
	if u.app.Port() != "" {
		port = u.app.Port()
	}
	top := container.NewHBox(
		widget.NewLabel("COM Port: "+port),
		widget.NewButton("Set prog.py", u.setProgrammer),
	)

	u.panels = container.NewGridWithColumns(2)
	u.refresh()

	u.console = widget.NewLabel("")
	u.console.TextStyle = fyne.TextStyle{Monospace: true}
	u.scroll = container.NewVScroll(u.console)
	u.scroll.SetMinSize(fyne.NewSize(0, 250))

	return container.NewBorder(top, u.scroll, nil, nil, u.panels)
}

func main() {
	flag.Parse()
	defer glog.Flush()

	app, err := gobbg.NewApp(gobbg.Options{
		ConfigPath: *configFlag,
		SessionDir: *sessionFlag,
		Python:     *pythonFlag,
		UsePty:     *ptyFlag,
		BridgeScan: gobbg.FindUsbBridges,
	})
	if err != nil {
		glog.Exitf("Failed to start: %v", err)
	}

	a := fyneapp.NewWithID("com.google.gobbg")
	win := a.NewWindow("BreadboarD GeniuS Programmer")
	win.Resize(fyne.NewSize(1200, 800))

	u := &ui{app: app, win: win}
	win.SetContent(u.build())
	win.ShowAndRun()
}
