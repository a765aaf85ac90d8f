package goble

import (
	"fmt"

	"github.com/go-ble/ble"
	"github.com/srg/gattplug/internal/device"
)

// toUUIDs converts ids in any accepted form to go-ble UUIDs.
// SIG base UUIDs are passed in their 16-bit form.
func toUUIDs(ids []string) ([]ble.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	out := make([]ble.UUID, 0, len(ids))
	for _, id := range ids {
		u, err := ble.Parse(device.Shorten(id))
		if err != nil {
			return nil, fmt.Errorf("invalid UUID %q: %w", id, err)
		}
		out = append(out, u)
	}
	return out, nil
}
