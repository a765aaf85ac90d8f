package device

import (
	"context"
	"strings"
)

// RadioState is the power state reported by a radio backend.
type RadioState string

const (
	StateUnknown     RadioState = "unknown"
	StatePoweredOff  RadioState = "poweredOff"
	StatePoweredOn   RadioState = "poweredOn"
	StateUnsupported RadioState = "unsupported"
)

// ConnectionState is the observed link state of a peripheral.
type ConnectionState string

const (
	Disconnected ConnectionState = "disconnected"
	Connecting   ConnectionState = "connecting"
	Connected    ConnectionState = "connected"
)

// ScanOptions tunes radio-level scanning.
type ScanOptions struct {
	// NamePrefix is honored by the radio only if Capabilities().NameFilter is set.
	NamePrefix      string
	AllowDuplicates bool
}

// Capabilities describes optional radio features.
type Capabilities struct {
	// NameFilter reports whether StartScanning filters by advertised name.
	NameFilter bool
	// ConnectedEnumeration reports whether ConnectedPeripherals sees links
	// opened outside this process.
	ConnectedEnumeration bool
}

// Radio is the contract of a BLE controller backend.
//
// Event registrations return a cancel func that removes only that listener.
// Implementations must be safe for concurrent use.
type Radio interface {
	State() RadioState
	Capabilities() Capabilities

	// StartScanning replaces any running radio scan. An empty ids slice scans unfiltered.
	StartScanning(ctx context.Context, serviceIDs []string, opts ScanOptions) error
	StopScanning() error

	OnDiscover(fn func(Peripheral)) (cancel func())
	OnStateChange(fn func(RadioState)) (cancel func())
	OnError(fn func(error)) (cancel func())

	// ConnectedPeripherals lists peripherals the backend currently reports as connected.
	ConnectedPeripherals(ctx context.Context) ([]Peripheral, error)

	Close() error
}

// Peripheral is a handle to a remote device owned by the backend.
type Peripheral interface {
	ID() string
	Name() string
	AdvertisedServices() []string
	State() ConnectionState

	// Services returns the services discovered on the current connection.
	// Backends drop the cache when the link goes down.
	Services() []Service

	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	// DiscoverServices queries the remote device. Empty ids means all services.
	DiscoverServices(ctx context.Context, ids []string) ([]Service, error)
}

// Service is a GATT service on a connected peripheral.
type Service interface {
	ID() string
	PeripheralID() string
	// DiscoverCharacteristics queries the service. Empty ids means all characteristics.
	DiscoverCharacteristics(ctx context.Context, ids []string) ([]Characteristic, error)
}

// Characteristic is an individually addressable data point of a service.
type Characteristic interface {
	ID() string
	ServiceID() string
	PeripheralID() string
	Properties() Property

	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte, withoutResponse bool) error

	// Subscribe enables notifications on the remote side.
	Subscribe(ctx context.Context) error
	Unsubscribe(ctx context.Context) error
	// OnData registers a notification listener; payloads arrive in radio order.
	OnData(fn func([]byte)) (cancel func())
}

// Property is a bit set of characteristic properties, using the ATT bit layout.
type Property uint8

const (
	PropBroadcast Property = 1 << iota
	PropRead
	PropWriteWithoutResponse
	PropWrite
	PropNotify
	PropIndicate
	PropSignedWrite
	PropExtended
)

var propertyNames = []struct {
	p    Property
	name string
}{
	{PropBroadcast, "broadcast"},
	{PropRead, "read"},
	{PropWriteWithoutResponse, "writeWithoutResponse"},
	{PropWrite, "write"},
	{PropNotify, "notify"},
	{PropIndicate, "indicate"},
	{PropSignedWrite, "signedWrite"},
	{PropExtended, "extended"},
}

// Has reports whether all bits of q are set.
func (p Property) Has(q Property) bool {
	return p&q == q
}

func (p Property) String() string {
	var names []string
	for _, pn := range propertyNames {
		if p&pn.p != 0 {
			names = append(names, pn.name)
		}
	}
	return strings.Join(names, ",")
}

// ParseProperties parses a comma separated property list such as "read,notify".
// Unknown names are ignored.
func ParseProperties(s string) Property {
	var p Property
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		for _, pn := range propertyNames {
			if strings.EqualFold(part, pn.name) {
				p |= pn.p
			}
		}
	}
	return p
}
