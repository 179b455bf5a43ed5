package cmd

import (
	"fmt"
	"time"

	"github.com/bvisness/hello/spin"
	"github.com/spf13/cobra"
)

var freezeDuration time.Duration

var freezeCmd = &cobra.Command{
	Use:   "freeze",
	Short: "Busy-wait for a while, then exit",
	Long: `freeze spins on the wall clock for the given duration without yielding
the CPU, then exits 0. It does not start the server.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "freeze %v\n", freezeDuration)
		spin.Freeze(freezeDuration)
		fmt.Fprintln(cmd.OutOrStdout(), "done")
	},
}

func init() {
	freezeCmd.Flags().DurationVarP(&freezeDuration, "duration", "d", 60*time.Second, "How long to spin")
}
