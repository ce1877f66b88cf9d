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

import "sync"

// Programmer output kept for web clients. Lines are numbered from 0 in the
// order they arrived; only the most recent ones are retained.
type console struct {
	limit int

	mu    sync.Mutex
	first int // number of lines[0]
	lines []string
	// Closed and replaced on every append.
	changed chan struct{}
}

func newConsole(limit int) *console {
	return &console{limit: limit, changed: make(chan struct{})}
}

func (c *console) append(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
	if over := len(c.lines) - c.limit; over > 0 {
		c.lines = append([]string(nil), c.lines[over:]...)
		c.first += over
	}
	close(c.changed)
	c.changed = make(chan struct{})
}

// since returns the retained lines numbered n and later, the number of the
// next line, and a channel closed once more lines arrive.
func (c *console) since(n int) ([]string, int, <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.first + len(c.lines)
	if n < c.first {
		n = c.first
	}
	if n >= next {
		return nil, next, c.changed
	}
	return append([]string(nil), c.lines[n-c.first:]...), next, c.changed
}
