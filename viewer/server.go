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

// Web front end. Serves the registered HEX files, runs programming attempts,
// streams programmer output to browsers and exposes the session logs and
// Prometheus metrics.
package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/gobbg"
	"github.com/google/gobbg/report"
	"github.com/google/gobbg/util"

	"github.com/fsnotify/fsnotify"
	"github.com/golang/glog"
	"github.com/labstack/echo"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	portFlag    = flag.Int("port", 8080, "Server HTTP port number")
	configFlag  = flag.String("config", "", "Configuration file (default $BBG_CONFIG, else ./"+gobbg.ConfigFileName+")")
	sessionFlag = flag.String("session_dir", "", "Directory for packdataN.txt session logs (default: working directory)")
	pythonFlag  = flag.String("python", "", "Interpreter used to run prog.py (default "+gobbg.DefaultPython()+")")
	ptyFlag     = flag.Bool("pty", runtime.GOOS != "windows", "Run the programmer on a pseudo-terminal so output streams live")
	waitFlag    = flag.Duration("wait", 5*time.Minute, "Longest time a long-poll request is held open")
)

const consoleLimit = 10000

//go:embed index.html
var indexHTML []byte

type resultJSON struct {
	ID         string               `json:"id"`
	Outcome    string               `json:"outcome"`
	Title      string               `json:"title"`
	Message    string               `json:"message"`
	Device     gobbg.DeviceType     `json:"device"`
	File       string               `json:"file"`
	ExitCode   int                  `json:"exitCode"`
	Record     *gobbg.AttemptRecord `json:"record,omitempty"`
	DurationMs int64                `json:"durationMs"`
}

func newResultJSON(res *gobbg.Result) *resultJSON {
	return &resultJSON{
		ID:         res.ID,
		Outcome:    res.Outcome.String(),
		Title:      res.Title(),
		Message:    res.Message(),
		Device:     res.Device,
		File:       filepath.Base(res.File),
		ExitCode:   res.ExitCode,
		Record:     res.Record,
		DurationMs: res.Duration.Milliseconds(),
	}
}

type categoryJSON struct {
	Category string            `json:"category"`
	Title    string            `json:"title"`
	Device   gobbg.DeviceType  `json:"device"`
	Files    []gobbg.FileEntry `json:"files"`
}

type server struct {
	app     *gobbg.App
	console *console
	wait    time.Duration
	// Publishes every change to the configuration file.
	configChanged *util.Broker[fsnotify.Event]

	mu   sync.Mutex
	last *resultJSON
}

func newServer(app *gobbg.App, wait time.Duration) *server {
	s := &server{
		app:           app,
		console:       newConsole(consoleLimit),
		wait:          wait,
		configChanged: util.NewBroker[fsnotify.Event](),
	}
	go s.configChanged.Start()
	return s
}

// Reloads the configuration whenever its file changes on disk. The directory
// is watched rather than the file since saves replace the file.
func (s *server) watchConfig() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		glog.Errorf("NewWatcher failed: %v", err)
		return
	}
	defer watcher.Close()

	configPath := s.app.ConfigPath()
	if err = watcher.Add(filepath.Dir(configPath)); err != nil {
		glog.Errorf("watcher.Add failed: %v", err)
		return
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				glog.Warning("watcher.Events is not ok. Aborting")
				return
			}
			glog.V(1).Infof("Watcher event: %v", event)
			if filepath.Base(event.Name) != filepath.Base(configPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				if err := s.app.ReloadConfig(); err != nil {
					glog.Warningf("Reloading configuration failed: %v", err)
					continue
				}
				s.configChanged.Publish(event)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				glog.Warning("watcher.Errors is not ok. Aborting")
				return
			}
			glog.Warningf("Watcher error: %v", err)
		}
	}
}

func (s *server) waitForConfig(c echo.Context) {
	timedOut := time.NewTimer(s.wait)
	defer timedOut.Stop()
	changed := s.configChanged.Subscribe()
	defer s.configChanged.Unsubscribe(changed)

	select {
	case <-timedOut.C:
		glog.V(1).Infof("Timed out")
	case <-c.Request().Context().Done():
		glog.V(1).Infof("Client disconnected")
	case <-changed:
		glog.V(1).Infof("Received config notification from broker")
	}
}

func (s *server) category(c echo.Context) (gobbg.Category, error) {
	cat, err := gobbg.ParseCategory(c.Param("category"))
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return cat, nil
}

func (s *server) entry(c echo.Context) (gobbg.Category, gobbg.FileEntry, error) {
	cat, err := s.category(c)
	if err != nil {
		return 0, gobbg.FileEntry{}, err
	}
	name := c.Param("name")
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	entry, err := s.app.Find(cat, name)
	if err != nil {
		return 0, gobbg.FileEntry{}, echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return cat, entry, nil
}

func (s *server) status(c echo.Context) error {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"port":           s.app.Port(),
		"configPath":     s.app.ConfigPath(),
		"programmerPath": s.app.Config().ProgrammerPath,
		"sessionLog":     s.app.SessionLog().Filename(),
		"last":           last,
	})
}

func (s *server) files(c echo.Context) error {
	if c.QueryParam("wait") == "true" {
		s.waitForConfig(c)
	}
	config := s.app.Config()
	var out []categoryJSON
	for _, cat := range gobbg.Categories {
		files := config.Files(cat)
		if files == nil {
			files = []gobbg.FileEntry{}
		}
		out = append(out, categoryJSON{cat.String(), cat.Title(), cat.Device(), files})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *server) addFile(c echo.Context) error {
	cat, err := s.category(c)
	if err != nil {
		return err
	}
	path := c.FormValue("path")
	if path == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing path")
	}
	entry, err := s.app.AddFile(cat, path)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, entry)
}

func (s *server) removeFile(c echo.Context) error {
	cat, entry, err := s.entry(c)
	if err != nil {
		return err
	}
	if err = s.app.RemoveFile(cat, entry.Path); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func statusCode(o gobbg.Outcome) int {
	switch o {
	case gobbg.OutcomeBusy:
		return http.StatusConflict
	case gobbg.OutcomeConfigError:
		return http.StatusPreconditionFailed
	case gobbg.OutcomeException:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

// Runs one attempt and responds once it is over. Output goes to the console
// as it arrives. The attempt is not tied to the request, so a client that
// goes away does not interrupt a write.
func (s *server) program(c echo.Context) error {
	cat, entry, err := s.entry(c)
	if err != nil {
		return err
	}
	s.console.append(fmt.Sprintf(">>> %s (%s)", entry.Name, cat.Device()))
	res := s.app.Program(context.Background(), cat, entry, s.console.append)
	s.console.append(fmt.Sprintf("<<< %s", res.Message()))

	out := newResultJSON(res)
	if res.Outcome != gobbg.OutcomeBusy {
		s.mu.Lock()
		s.last = out
		s.mu.Unlock()
	}
	return c.JSON(statusCode(res.Outcome), out)
}

// Returns console lines from ?since=N on, holding the request open until
// there is at least one.
func (s *server) consoleLines(c echo.Context) error {
	since := 0
	if v := c.QueryParam("since"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid since")
		}
		since = n
	}

	lines, next, changed := s.console.since(since)
	if len(lines) == 0 && c.QueryParam("wait") != "false" {
		timedOut := time.NewTimer(s.wait)
		defer timedOut.Stop()
		select {
		case <-timedOut.C:
		case <-c.Request().Context().Done():
			return nil
		case <-changed:
			lines, next, _ = s.console.since(since)
		}
	}
	if lines == nil {
		lines = []string{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"lines": lines,
		"next":  next,
	})
}

func (s *server) logs(c echo.Context) error {
	files, err := report.FindLogFiles(s.app.SessionLog().Dir())
	if err != nil {
		glog.Errorf("FindLogFiles failed: %v", err)
		return err
	}
	names := []string{}
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	return c.JSON(http.StatusOK, names)
}

func (s *server) log(c echo.Context) error {
	name := c.Param("name")
	if !gobbg.IsLogFilename(name) {
		return echo.NewHTTPError(http.StatusNotFound, "no such log")
	}
	sheet, err := report.LoadLogFile(filepath.Join(s.app.SessionLog().Dir(), name))
	if err != nil {
		glog.Errorf("Error loading session log: %v", err)
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if sheet.Records == nil {
		sheet.Records = []gobbg.AttemptRecord{}
	}
	return c.JSON(http.StatusOK, sheet.Records)
}

func (s *server) routes() *echo.Echo {
	e := echo.New()

	e.GET("/", func(c echo.Context) error {
		return c.Blob(http.StatusOK, echo.MIMETextHTMLCharsetUTF8, indexHTML)
	})
	e.GET("/status", s.status)
	e.GET("/files", s.files)
	e.POST("/files/:category", s.addFile)
	e.DELETE("/files/:category/:name", s.removeFile)
	e.POST("/program/:category/:name", s.program)
	e.GET("/console", s.consoleLines)
	e.GET("/logs", s.logs)
	e.GET("/logs/:name", s.log)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return e
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

	s := newServer(app, *waitFlag)
	go s.watchConfig()

	glog.Fatal(s.routes().Start(fmt.Sprintf(":%d", *portFlag)))
}
