package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/srg/gattplug/internal/device"
	"github.com/srg/gattplug/pkg/config"
)

// Command-level errors
var (
	// ErrDeviceNotFound indicates the requested address never showed up while scanning.
	ErrDeviceNotFound = errors.New("device not found")
)

// FormatUserError turns typed errors into a short message with a hint.
func FormatUserError(err error) string {
	var (
		missing *device.MissingCharacteristicsError
		timeout *device.TimeoutError
	)
	switch {
	case errors.As(err, &missing):
		return fmt.Sprintf("service %s lacks characteristics %s (found: %s)",
			missing.ServiceID, strings.Join(missing.Missing(), ", "), strings.Join(missing.Found, ", "))
	case errors.As(err, &timeout):
		return fmt.Sprintf("%s timed out after %s; raise --discovery-timeout or --rw-timeout if the device is slow", timeout.Op, timeout.After)
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off; enable it and try again"
	case errors.Is(err, device.ErrServiceNotFound):
		return err.Error() + "; use 'gattctl inspect' to list what the device exposes"
	case errors.Is(err, ErrDeviceNotFound):
		return err.Error() + "; check the address with 'gattctl scan'"
	case errors.Is(err, config.ErrMissingTimeout):
		return err.Error() + "; set it in the config file or via flags"
	default:
		return err.Error()
	}
}

func printError(w io.Writer, err error) {
	red := color.New(color.FgRed, color.Bold)
	red.Fprint(w, "ERROR: ")
	fmt.Fprintln(w, FormatUserError(err))
}
