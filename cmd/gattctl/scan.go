package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/gattplug/internal/device"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Find BLE devices advertising given services",
	Long: `Scan for Bluetooth Low Energy devices and list the ones advertising any of
the requested services, optionally restricted to a local name prefix.

Examples:
  # Every device in range for 5 seconds
  gattctl scan -d 5s

  # Heart rate monitors whose name starts with "Polar"
  gattctl scan --services 180d --name Polar

  # JSON output
  gattctl scan --services 180f --format json`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanFormat   string
	scanServices []string
	scanName     string
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration (0 until Ctrl+C)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().StringSliceVarP(&scanServices, "services", "s", nil, "Filter by service ids")
	scanCmd.Flags().StringVarP(&scanName, "name", "n", "", "Filter by local name prefix")
}

// scanEntry is one discovered device.
type scanEntry struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Services []string  `json:"services"`
	LastSeen time.Time `json:"last_seen"`
}

func runScan(cmd *cobra.Command, _ []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", scanFormat)
	}
	if len(scanServices) > 0 {
		if _, err := device.ValidateIDs(scanServices...); err != nil {
			return fmt.Errorf("invalid service id: %w", err)
		}
	}

	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if scanDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, scanDuration)
		defer cancel()
	}

	var mu sync.Mutex
	entries := make(map[string]scanEntry)
	sess.plug.FindServices(scanServices, func(_ []string, p device.Peripheral) {
		mu.Lock()
		defer mu.Unlock()
		entries[p.ID()] = scanEntry{
			ID:       p.ID(),
			Name:     p.Name(),
			Services: p.AdvertisedServices(),
			LastSeen: time.Now(),
		}
	}, scanName)

	<-ctx.Done()
	if err := sess.plug.StopFindServices(); err != nil {
		sess.logger.WithError(err).Warn("Failed to stop scanning")
	}

	mu.Lock()
	list := make([]scanEntry, 0, len(entries))
	for _, e := range entries {
		list = append(list, e)
	}
	mu.Unlock()
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	out := cmd.OutOrStdout()
	if scanFormat == "json" {
		return displayDevicesJSON(out, list)
	}
	return displayDevicesTable(out, list)
}

func displayDevicesTable(out io.Writer, entries []scanEntry) error {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No devices discovered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := color.New(color.Bold)
	header.Fprintln(w, "NAME\tADDRESS\tSERVICES\tLAST SEEN")
	fmt.Fprintln(w, strings.Repeat("-", 72))

	for _, e := range entries {
		name := e.Name
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		short := make([]string, 0, len(e.Services))
		for _, s := range e.Services {
			short = append(short, device.Shorten(s))
		}
		services := strings.Join(short, ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}
		lastSeen := time.Since(e.LastSeen).Truncate(time.Second)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s ago\n", name, e.ID, services, lastSeen)
	}
	return w.Flush()
}

func displayDevicesJSON(out io.Writer, entries []scanEntry) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(entries)
}
