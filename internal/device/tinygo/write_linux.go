//go:build linux

package tinygo

import (
	"github.com/srg/gattplug/internal/device"
	"tinygo.org/x/bluetooth"
)

// The BlueZ client in tinygo only exposes write commands.
func writeWithResponse(bluetooth.DeviceCharacteristic, []byte) error {
	return device.ErrUnsupported
}
