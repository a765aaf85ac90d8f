package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/gattplug/internal/device"
)

// advertisedServices returns the service ids carried by an advertisement,
// including the overflow area.
func advertisedServices(adv ble.Advertisement) []string {
	svcs := adv.Services()
	overflow := adv.OverflowService()
	result := make([]string, 0, len(svcs)+len(overflow))
	for _, u := range svcs {
		result = append(result, u.String())
	}
	for _, u := range overflow {
		result = append(result, u.String())
	}
	return result
}

// advertisesAny reports whether adv carries any of ids. An empty ids matches everything.
func advertisesAny(adv ble.Advertisement, ids []string) bool {
	if len(ids) == 0 {
		return true
	}
	for _, got := range advertisedServices(adv) {
		for _, want := range ids {
			if device.CompareID(want, got) {
				return true
			}
		}
	}
	return false
}
