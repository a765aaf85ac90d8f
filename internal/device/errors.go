package device

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// NotFoundError represents an error when a GATT resource is not found
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // One or more ids (e.g., [serviceID] or [serviceID, charID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// Is allows errors.Is to compare NotFoundError values by Resource
func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	if !ok {
		return false
	}
	return e.Resource == t.Resource
}

// MissingCharacteristicsError reports a characteristic discovery shortfall.
// Wanted holds the requested ids, Found the subset that resolved, both in request order.
type MissingCharacteristicsError struct {
	ServiceID string
	Wanted    []string
	Found     []string
}

func (e *MissingCharacteristicsError) Error() string {
	return fmt.Sprintf("missing characteristics in service %q: wanted [%s], found [%s]",
		e.ServiceID, strings.Join(e.Wanted, ", "), strings.Join(e.Found, ", "))
}

func (e *MissingCharacteristicsError) Is(target error) bool {
	return target == ErrMissingCharacteristics
}

// Missing returns the wanted ids that were not found.
func (e *MissingCharacteristicsError) Missing() []string {
	var out []string
	for _, w := range e.Wanted {
		found := false
		for _, f := range e.Found {
			if CompareID(w, f) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, w)
		}
	}
	return out
}

// TimeoutError is returned when a guarded operation exceeds its deadline.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timeout after %v", e.Op, e.After)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// AdapterError wraps a failure reported by the radio backend.
type AdapterError struct {
	Op  string
	Err error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// ConnectionFailure is the specific kind of connection state failure
type ConnectionFailure string

const (
	NotConnected     ConnectionFailure = "not_connected"
	AlreadyConnected ConnectionFailure = "already_connected"
	BluetoothOff     ConnectionFailure = "bluetooth is turned off"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionFailure
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrBluetoothOff     = &ConnectionError{State: BluetoothOff}

	ErrServiceNotFound        = &NotFoundError{Resource: "service"}
	ErrCharacteristicNotFound = &NotFoundError{Resource: "characteristic"}
	ErrMissingCharacteristics = errors.New("missing characteristics")

	ErrRadioNotReady = errors.New("radio not powered on")
	ErrTimeout       = errors.New("timeout")
	ErrUnsupported   = errors.New("unsupported")
	ErrClosed        = errors.New("closed")
)

// WrapAdapter wraps a backend failure unless it already carries a known kind.
func WrapAdapter(op string, err error) error {
	if err == nil {
		return nil
	}
	var aerr *AdapterError
	if errors.As(err, &aerr) || errors.Is(err, ErrTimeout) {
		return err
	}
	return &AdapterError{Op: op, Err: err}
}

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionFailure) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// ContainsIgnoreCase checks the substring case-insensitively
func ContainsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
