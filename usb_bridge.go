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

// Scans the USB bus for WCH CH34x bridge chips.
// Used to tell a missing adapter apart from an adapter whose serial driver is
// not loaded.
package gobbg

import (
	"fmt"

	"github.com/golang/glog"
	"github.com/google/gousb"
)

const wchVid gousb.ID = 0x1a86

var wchBridgePids = map[gousb.ID]string{
	0x7523: "CH340",
	0x7522: "CH340K",
	0x5523: "CH341",
	0x55d4: "CH9102",
}

type UsbBridge struct {
	Bus     int
	Address int
	Vendor  gousb.ID
	Product gousb.ID
	Chip    string
}

func (b UsbBridge) String() string {
	return fmt.Sprintf("%s (%s:%s) on bus %03d address %03d", b.Chip, b.Vendor, b.Product, b.Bus, b.Address)
}

// IsWchBridge reports whether desc belongs to a supported bridge chip.
func IsWchBridge(desc *gousb.DeviceDesc) (string, bool) {
	if desc.Vendor != wchVid {
		return "", false
	}
	chip, ok := wchBridgePids[desc.Product]
	return chip, ok
}

// FindUsbBridges lists CH34x bridges attached to the USB bus. Devices are only
// matched by descriptor and never opened, so no extra permissions are needed.
func FindUsbBridges() ([]UsbBridge, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	var bridges []UsbBridge
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if chip, ok := IsWchBridge(desc); ok {
			bridges = append(bridges, UsbBridge{desc.Bus, desc.Address, desc.Vendor, desc.Product, chip})
		}
		return false
	})
	for _, d := range devs {
		d.Close()
	}
	if err != nil {
		return bridges, fmt.Errorf("Scanning USB bus: %v", err)
	}
	glog.V(1).Infof("Found %d CH34x bridges on the USB bus", len(bridges))
	return bridges, nil
}
