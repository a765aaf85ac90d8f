package testutils

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a debug level logger.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

func CreateMockPeripheral() *PeripheralDeviceBuilder {
	return NewPeripheralDeviceBuilder()
}

func CreateMockPeripheralFromJSON(jsonStrFmt string, args ...interface{}) *PeripheralDeviceBuilder {
	return NewPeripheralDeviceBuilder().FromJSON(jsonStrFmt, args...)
}

// Unset removes every expectation registered for method, so a test can
// replace the builder's defaults.
func Unset(m *mock.Mock, method string) {
	kept := m.ExpectedCalls[:0]
	for _, c := range m.ExpectedCalls {
		if c.Method != method {
			kept = append(kept, c)
		}
	}
	m.ExpectedCalls = kept
}

// Eventually waits for cond with the helper's default polling.
func (h *TestHelper) Eventually(cond func() bool, msgAndArgs ...interface{}) bool {
	h.T.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.T.Errorf("condition not met in time: %v", msgAndArgs)
	return false
}
