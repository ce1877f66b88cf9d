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

// Serial adapter discovery.
package gobbg

import (
	"fmt"
	"strings"

	"github.com/golang/glog"
	"go.bug.st/serial/enumerator"
)

// Description substrings of the supported USB-serial bridge.
var bridgeMarkers = []string{"CH340", "CH34"}

type PortInfo struct {
	Device      string `json:"device"`
	Description string `json:"description"`
}

//go:generate mockgen -destination=mocks/port_enumerator.go -package=mocks github.com/google/gobbg PortEnumerator
type PortEnumerator interface {
	// Lists serial ports in the order the OS reports them.
	Ports() ([]PortInfo, error)
}

// Enumerates the ports exposed by the operating system.
type SerialEnumerator struct{}

func (SerialEnumerator) Ports() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("GetDetailedPortsList failed: %v", err)
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		desc := d.Product
		if desc == "" {
			desc = d.Name
		}
		if d.IsUSB {
			glog.V(2).Infof("[port] %s: %q VID=%s PID=%s", d.Name, desc, d.VID, d.PID)
		}
		ports = append(ports, PortInfo{d.Name, desc})
	}
	return ports, nil
}

// IsBridgePort reports whether the description names a CH34x bridge.
func IsBridgePort(p PortInfo) bool {
	for _, m := range bridgeMarkers {
		if strings.Contains(p.Description, m) {
			return true
		}
	}
	return false
}

// DetectPort returns the device of the first enumerated CH34x port.
func DetectPort(e PortEnumerator) (string, bool) {
	ports, err := e.Ports()
	if err != nil {
		glog.Warningf("Failed listing serial ports: %v", err)
		return "", false
	}
	for _, p := range ports {
		if IsBridgePort(p) {
			glog.Infof("Detected CH340 adapter on %s (%s)", p.Device, p.Description)
			return p.Device, true
		}
	}
	glog.V(1).Infof("No CH340 adapter among %d ports", len(ports))
	return "", false
}
