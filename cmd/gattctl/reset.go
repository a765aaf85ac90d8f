package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// resetCmd represents the reset command
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Disconnect every peripheral the radio reports as connected",
	Long: `Disconnects, best effort, every peripheral the radio currently reports as
connected. Each disconnect is bounded by the read/write timeout; failures are
logged and do not stop the others.`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func runReset(cmd *cobra.Command, _ []string) error {
	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.plug.Reset(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Reset complete")
	return nil
}
