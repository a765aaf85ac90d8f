package device

import (
	"encoding"
	"fmt"
)

// ToBuffer coerces a caller-supplied value into the byte buffer a characteristic write expects.
//
// Supported: []byte, string, byte, []int (each element must fit in a byte),
// and encoding.BinaryMarshaler.
func ToBuffer(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("cannot write nil value")
	case []byte:
		return val, nil
	case string:
		return []byte(val), nil
	case byte:
		return []byte{val}, nil
	case []int:
		buf := make([]byte, len(val))
		for i, n := range val {
			if n < 0 || n > 0xff {
				return nil, fmt.Errorf("value at index %d out of byte range: %d", i, n)
			}
			buf[i] = byte(n)
		}
		return buf, nil
	case encoding.BinaryMarshaler:
		return val.MarshalBinary()
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}
