package device

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// BaseUUIDSuffix is the tail of the Bluetooth SIG base UUID (0000xxxx-0000-1000-8000-00805f9b34fb).
const BaseUUIDSuffix = "00001000800000805f9b34fb"

// Normalize converts an identifier to its compact textual form: lower case,
// no dashes or braces, no 0x prefix. It does not validate length.
func Normalize(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	id = strings.Trim(id, "{}")
	id = strings.ReplaceAll(id, "-", "")
	return strings.TrimPrefix(id, "0x")
}

// Expand returns the dashed 128-bit form of an identifier. Short (up to
// 32-bit) ids are placed into the Bluetooth SIG base UUID; 128-bit ids are
// only re-dashed and lower-cased. Anything else is returned normalized.
func Expand(id string) string {
	n := Normalize(id)
	switch {
	case n == "":
		return ""
	case len(n) <= 8:
		return dashed(strings.Repeat("0", 8-len(n)) + n + BaseUUIDSuffix)
	case len(n) == 32:
		return dashed(n)
	default:
		return n
	}
}

// ExpandAll expands every id, preserving order.
func ExpandAll(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = Expand(id)
	}
	return out
}

// ShortCode renders a numeric 16-bit identifier in its textual short form.
func ShortCode(n uint16) string {
	return fmt.Sprintf("%04x", n)
}

// Shorten returns the 16-bit form of a SIG base UUID and the normalized form otherwise.
func Shorten(id string) string {
	n := Normalize(Expand(id))
	if len(n) == 32 && strings.HasPrefix(n, "0000") && strings.HasSuffix(n, BaseUUIDSuffix) {
		return n[4:8]
	}
	return n
}

// CompareID reports whether x and y denote the same identifier regardless of
// form, case, dashes or 0x prefix. A short form equals its base-UUID
// expansion. Empty or all-zero ids never match anything, themselves included.
func CompareID(x, y string) bool {
	if isZeroID(x) || isZeroID(y) {
		return false
	}
	return Expand(x) == Expand(y)
}

type identified interface {
	ID() string
}

func firstMatch[T identified](items []T, id string) (T, bool) {
	for _, it := range items {
		if CompareID(id, it.ID()) {
			return it, true
		}
	}
	var zero T
	return zero, false
}

// MatchService returns the first service, in discovery order, whose id matches id.
func MatchService(services []Service, id string) (Service, bool) {
	return firstMatch(services, id)
}

// MatchCharacteristics resolves ids in order against chars, omitting misses.
// Callers detect missing characteristics by comparing lengths.
func MatchCharacteristics(ids []string, chars []Characteristic) []Characteristic {
	result := make([]Characteristic, 0, len(ids))
	for _, id := range ids {
		if c, ok := firstMatch(chars, id); ok {
			result = append(result, c)
		}
	}
	return result
}

// CanonicalKey builds an order-insensitive key for a set of service ids.
func CanonicalKey(ids []string) string {
	seen := make(map[string]struct{}, len(ids))
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		e := Expand(id)
		if _, ok := seen[e]; ok || e == "" {
			continue
		}
		seen[e] = struct{}{}
		keys = append(keys, e)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

// ValidateIDs checks that every id is non-empty hex of 16, 32 or 128 bits.
// Returns the expanded ids.
func ValidateIDs(ids ...string) ([]string, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("at least one UUID is required")
	}

	result := make([]string, 0, len(ids))
	for i, id := range ids {
		n := Normalize(id)
		if n == "" {
			return nil, fmt.Errorf("UUID at index %d cannot be empty", i)
		}
		if _, err := hex.DecodeString(n); err != nil || (len(n) != 4 && len(n) != 8 && len(n) != 32) {
			return nil, fmt.Errorf("invalid UUID format at index %d: %s", i, id)
		}
		result = append(result, Expand(n))
	}
	return result, nil
}

var knownNames = map[string]string{
	"1800": "Generic Access",
	"1801": "Generic Attribute",
	"180a": "Device Information",
	"180d": "Heart Rate",
	"180f": "Battery Service",
	"2a00": "Device Name",
	"2a01": "Appearance",
	"2a19": "Battery Level",
	"2a37": "Heart Rate Measurement",
	"2a38": "Body Sensor Location",
	"2a39": "Heart Rate Control Point",
	"6e400001b5a3f393e0a9e50e24dcca9e": "Nordic UART Service",
	"6e400002b5a3f393e0a9e50e24dcca9e": "Nordic UART RX",
	"6e400003b5a3f393e0a9e50e24dcca9e": "Nordic UART TX",
}

// KnownName returns a display name for well-known ids, or "".
func KnownName(id string) string {
	return knownNames[Shorten(id)]
}

// isZeroID reports an empty or all-zero id, including the zero short code
// placed in the base UUID.
func isZeroID(id string) bool {
	n := Normalize(Expand(id))
	return strings.Trim(n, "0") == "" || n == "00000000"+BaseUUIDSuffix
}

func dashed(n string) string {
	if u, err := uuid.Parse(n); err == nil {
		return u.String()
	}
	return n[0:8] + "-" + n[8:12] + "-" + n[12:16] + "-" + n[16:20] + "-" + n[20:]
}
