package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/gattplug/internal/device"
)

// subscribeCmd represents the subscribe command
var subscribeCmd = &cobra.Command{
	Use:   "subscribe <device-address> <service> <char>[,<char>...]",
	Short: "Print notifications from characteristics",
	Long: `Connects to a device, subscribes to the requested characteristics and
prints every notification until the duration elapses or Ctrl+C is pressed.

Examples:
  gattctl subscribe AA:BB:CC:DD:EE:FF 180d 2a37
  gattctl subscribe AA:BB:CC:DD:EE:FF 180f 2a19 -d 30s --hex`,
	Args: cobra.ExactArgs(3),
	RunE: runSubscribe,
}

var (
	subscribeDuration time.Duration
	subscribeHex      bool
)

func init() {
	subscribeCmd.Flags().DurationVarP(&subscribeDuration, "duration", "d", 0, "Stop after this long (0 until Ctrl+C)")
	subscribeCmd.Flags().BoolVar(&subscribeHex, "hex", false, "Print values as hex")
}

func runSubscribe(cmd *cobra.Command, args []string) error {
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
		if err := sess.plug.Disconnect(context.Background(), d.Device, 0); err != nil {
			sess.logger.WithError(err).Warn("Disconnect failed")
		}
	}()

	out := cmd.OutOrStdout()
	var outMu sync.Mutex
	stamp := color.New(color.FgHiBlack)

	for _, c := range d.Characteristics {
		label := displayName(c.ID())
		err := sess.plug.Subscribe(ctx, c, func(data []byte) {
			outMu.Lock()
			defer outMu.Unlock()
			stamp.Fprintf(out, "%s ", time.Now().Format("15:04:05.000"))
			fmt.Fprintf(out, "%s: %s\n", label, formatValue(data, subscribeHex))
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", device.Shorten(c.ID()), err)
		}
		defer func(c device.Characteristic) {
			if err := sess.plug.Unsubscribe(context.Background(), c); err != nil {
				sess.logger.WithError(err).Warn("Unsubscribe failed")
			}
		}(c)
	}

	outMu.Lock()
	fmt.Fprintf(out, "Subscribed to %d characteristic(s), waiting for notifications...\n", len(d.Characteristics))
	outMu.Unlock()

	if subscribeDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, subscribeDuration)
		defer cancel()
	}
	<-ctx.Done()
	return nil
}
