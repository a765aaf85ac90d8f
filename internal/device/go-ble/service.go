package goble

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/srg/gattplug/internal/device"
)

// Service is a GATT service discovered on one connection.
type Service struct {
	peripheral *Peripheral
	client     ble.Client
	svc        *ble.Service
}

func (s *Service) ID() string {
	return s.svc.UUID.String()
}

func (s *Service) PeripheralID() string {
	return s.peripheral.ID()
}

func (s *Service) DiscoverCharacteristics(_ context.Context, ids []string) ([]device.Characteristic, error) {
	filter, err := toUUIDs(ids)
	if err != nil {
		return nil, err
	}

	bleChars, err := s.client.DiscoverCharacteristics(filter, s.svc)
	if err != nil {
		return nil, NormalizeError(err)
	}

	chars := make([]device.Characteristic, 0, len(bleChars))
	for _, c := range bleChars {
		chars = append(chars, &Characteristic{service: s, char: c})
	}
	return chars, nil
}
