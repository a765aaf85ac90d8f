package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"unicode"

	"github.com/spf13/cobra"
	"github.com/srg/gattplug/internal/device"
)

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read <device-address> <service> <char>[,<char>...]",
	Short: "Read characteristic values",
	Long: `Connects to a device, resolves the requested characteristics of a
service and reads each one. Discovery fails as a whole if any requested
characteristic is missing.

Examples:
  # Battery Level
  gattctl read AA:BB:CC:DD:EE:FF 180f 2a19

  # Several characteristics, hex output
  gattctl read AA:BB:CC:DD:EE:FF 180d 2a37,2a38 --hex`,
	Args: cobra.ExactArgs(3),
	RunE: runRead,
}

var (
	readHex   bool
	readDirty bool
)

func init() {
	readCmd.Flags().BoolVar(&readHex, "hex", false, "Print values as hex")
	readCmd.Flags().BoolVar(&readDirty, "dirty", false, "Read without the per-read timeout")
}

func runRead(cmd *cobra.Command, args []string) error {
	address, serviceID := args[0], args[1]
	if _, err := device.ValidateIDs(serviceID); err != nil {
		return fmt.Errorf("invalid service id: %w", err)
	}
	charIDs, err := parseIDs(args[2])
	if err != nil {
		return fmt.Errorf("invalid characteristic id: %w", err)
	}

	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := sess.discover(ctx, address, serviceID, charIDs...)
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.plug.Disconnect(ctx, d.Device, 0); err != nil {
			sess.logger.WithError(err).Warn("Disconnect failed")
		}
	}()

	out := cmd.OutOrStdout()
	for _, c := range d.Characteristics {
		var data []byte
		if readDirty {
			data, err = sess.plug.DirtyRead(ctx, c)
		} else {
			data, err = sess.plug.Read(ctx, c)
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", device.Shorten(c.ID()), err)
		}
		fmt.Fprintf(out, "%s: %s\n", displayName(c.ID()), formatValue(data, readHex))
	}
	return nil
}

// formatValue prints printable data as text and everything else as hex.
func formatValue(data []byte, asHex bool) string {
	if asHex || !isPrintable(data) {
		return hex.EncodeToString(data)
	}
	return string(data)
}

func isPrintable(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	for _, r := range string(data) {
		if r == unicode.ReplacementChar || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
