package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/srg/gattplug/internal/device"
)

// writeCmd represents the write command
var writeCmd = &cobra.Command{
	Use:   "write <device-address> <service> <char> <data>",
	Short: "Write a characteristic value",
	Long: `Connects to a device and writes data to a characteristic.

Examples:
  # Write a string
  gattctl write AA:BB:CC:DD:EE:FF ffe0 ffe1 "hello"

  # Write raw bytes
  gattctl write AA:BB:CC:DD:EE:FF 180d 2a39 01 --hex

  # Write without response
  gattctl write AA:BB:CC:DD:EE:FF ffe0 ffe1 "01:02:03" --hex --without-response`,
	Args: cobra.ExactArgs(4),
	RunE: runWrite,
}

var (
	writeHex        bool
	writeNoResponse bool
)

func init() {
	writeCmd.Flags().BoolVar(&writeHex, "hex", false, "Interpret data as hex")
	writeCmd.Flags().BoolVar(&writeNoResponse, "without-response", false, "Write without response")
}

func runWrite(cmd *cobra.Command, args []string) error {
	address, serviceID, charID := args[0], args[1], args[2]
	if _, err := device.ValidateIDs(serviceID, charID); err != nil {
		return fmt.Errorf("invalid id: %w", err)
	}

	value, err := parseWriteData(args[3])
	if err != nil {
		return fmt.Errorf("failed to parse data: %w", err)
	}

	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := sess.discover(ctx, address, serviceID, charID)
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.plug.Disconnect(ctx, d.Device, 0); err != nil {
			sess.logger.WithError(err).Warn("Disconnect failed")
		}
	}()

	if err := sess.plug.WriteValue(ctx, d.Characteristics[0], value, writeNoResponse); err != nil {
		return fmt.Errorf("failed to write characteristic: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Write successful")
	return nil
}

// parseWriteData returns raw bytes for --hex input and the string itself otherwise.
func parseWriteData(dataStr string) (any, error) {
	if !writeHex {
		return dataStr, nil
	}

	// Remove spaces and common separators
	cleaned := strings.ReplaceAll(dataStr, " ", "")
	cleaned = strings.ReplaceAll(cleaned, ":", "")
	cleaned = strings.ReplaceAll(cleaned, "-", "")
	cleaned = strings.ReplaceAll(cleaned, "0x", "")

	data, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}
	return data, nil
}
