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

package util

import (
	"fmt"
	"io"
	"os"

	"github.com/marcinbor85/gohex"
)

type Segment struct {
	Address uint32
	Data    []byte
}

// Summary of a parsed Intel-HEX image.
type HexImage struct {
	Segments []Segment
	// Start address record, if the file has one.
	StartAddress uint32
	HasStart     bool
}

// Size is the number of data bytes over all segments.
func (img *HexImage) Size() int {
	n := 0
	for _, s := range img.Segments {
		n += len(s.Data)
	}
	return n
}

// Span returns the lowest address and one past the highest.
func (img *HexImage) Span() (lo, hi uint32) {
	for i, s := range img.Segments {
		end := s.Address + uint32(len(s.Data))
		if i == 0 || s.Address < lo {
			lo = s.Address
		}
		if end > hi {
			hi = end
		}
	}
	return lo, hi
}

func (img *HexImage) String() string {
	lo, hi := img.Span()
	return fmt.Sprintf("%d bytes in %d segments [0x%04x, 0x%04x)", img.Size(), len(img.Segments), lo, hi)
}

// Exported for testing.
func ParseIntelHex(src io.Reader) (*HexImage, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(src); err != nil {
		return nil, fmt.Errorf("Invalid Intel-Hex data: %v", err)
	}

	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return nil, fmt.Errorf("Intel-Hex file has no data records")
	}

	img := &HexImage{}
	for _, s := range segments {
		img.Segments = append(img.Segments, Segment{s.Address, s.Data})
	}
	img.StartAddress, img.HasStart = mem.GetStartAddress()
	return img, nil
}

// LoadIntelHexFile parses filename and summarises its contents.
func LoadIntelHexFile(filename string) (*HexImage, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ParseIntelHex(file)
}
