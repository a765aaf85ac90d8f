package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/gattplug/internal/device"
	"github.com/srg/gattplug/internal/gatt"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <device-address> <service>",
	Short: "List the characteristics of a service",
	Long: `Connects to a device, discovers the given service and lists every
characteristic it exposes together with its properties.

Examples:
  gattctl inspect AA:BB:CC:DD:EE:FF 180f
  gattctl inspect AA:BB:CC:DD:EE:FF 0000180d-0000-1000-8000-00805f9b34fb --read`,
	Args: cobra.ExactArgs(2),
	RunE: runInspect,
}

var inspectRead bool

func init() {
	inspectCmd.Flags().BoolVar(&inspectRead, "read", false, "Read every readable characteristic")
}

func runInspect(cmd *cobra.Command, args []string) error {
	address, serviceID := args[0], args[1]
	if _, err := device.ValidateIDs(serviceID); err != nil {
		return fmt.Errorf("invalid service id: %w", err)
	}

	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := sess.discover(ctx, address, serviceID)
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.plug.Disconnect(ctx, d.Device, 0); err != nil {
			sess.logger.WithError(err).Warn("Disconnect failed")
		}
	}()

	printDiscovery(cmd, sess.plug, d)
	return nil
}

func printDiscovery(cmd *cobra.Command, plug *gatt.Plug, d *gatt.Discovery) {
	out := cmd.OutOrStdout()
	title := color.New(color.FgCyan, color.Bold)
	title.Fprintf(out, "Device %s", d.Device.ID())
	if name := d.Device.Name(); name != "" {
		fmt.Fprintf(out, " %q", name)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Service %s\n", displayName(d.Service.ID()))

	for _, c := range d.Characteristics {
		fmt.Fprintf(out, "    %s [%s]", displayName(c.ID()), c.Properties())
		if inspectRead && c.Properties().Has(device.PropRead) {
			data, err := plug.Read(cmd.Context(), c)
			if err != nil {
				color.New(color.FgRed).Fprintf(out, " read failed: %v", err)
			} else {
				fmt.Fprintf(out, " = %s", formatValue(data, true))
			}
		}
		fmt.Fprintln(out)
	}
}
