// Package device defines the radio contract the GATT layer drives and the
// pieces shared by every backend:
//   - Radio, Peripheral, Service and Characteristic interfaces
//   - identifier normalization and matching (16-bit, 32-bit and 128-bit forms)
//   - typed errors and value coercion for writes
//
// Backends live in subpackages (go-ble, tinygo, noop).
package device
