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

package util_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/gobbg/util"
)

func TestParseIntelHex(t *testing.T) {
	src := ":0400000001020304F2\n" +
		":020010000506E3\n" +
		":00000001FF\n"
	img, err := util.ParseIntelHex(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	if len(img.Segments) != 2 {
		t.Fatalf("Got %d segments, want 2", len(img.Segments))
	}
	if !bytes.Equal(img.Segments[0].Data, []byte{1, 2, 3, 4}) {
		t.Errorf("Unexpected first segment: %x", img.Segments[0].Data)
	}
	if img.Size() != 6 {
		t.Errorf("Size() = %d, want 6", img.Size())
	}
	if lo, hi := img.Span(); lo != 0 || hi != 0x12 {
		t.Errorf("Span() = %#x, %#x", lo, hi)
	}
	if img.HasStart {
		t.Errorf("Unexpected start address %#x", img.StartAddress)
	}
}

func TestParseIntelHexFailures(t *testing.T) {
	for _, tc := range []struct {
		name, src string
	}{
		{"text", "hello\n"},
		{"bad checksum", ":0400000001020304F3\n:00000001FF\n"},
		{"no data", ":00000001FF\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := util.ParseIntelHex(strings.NewReader(tc.src)); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestLoadIntelHexFileMissing(t *testing.T) {
	if _, err := util.LoadIntelHexFile("does/not/exist.hex"); err == nil {
		t.Error("Expected error")
	}
}
