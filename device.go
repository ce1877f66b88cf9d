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

// Package gobbg flashes BreadboarD GeniuS logic gate and counter chips over a
// CH340 USB-serial adapter by driving an external UPDI programmer (prog.py).
package gobbg

import (
	"fmt"
)

// Target MCU, passed to the programmer as the -d token.
type DeviceType string

const (
	DeviceLogicGate DeviceType = "attiny1616"
	DeviceCounter   DeviceType = "atmega4809"
)

// Category of registered HEX files. Each category has its own file list and
// always targets the same device type.
type Category int

const (
	CategoryLogic Category = iota
	CategoryCounter
)

var Categories = []Category{CategoryLogic, CategoryCounter}

func (c Category) String() string {
	switch c {
	case CategoryLogic:
		return "logic"
	case CategoryCounter:
		return "counter"
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// Device returns the fixed device type for files of this category.
func (c Category) Device() DeviceType {
	if c == CategoryCounter {
		return DeviceCounter
	}
	return DeviceLogicGate
}

// Title used for the category panel.
func (c Category) Title() string {
	switch c {
	case CategoryCounter:
		return fmt.Sprintf("Counters (%s)", c.Device())
	default:
		return fmt.Sprintf("Logic Gates (%s)", c.Device())
	}
}

// ParseCategory accepts "logic" or "counter".
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown category %q (want logic or counter)", s)
}
