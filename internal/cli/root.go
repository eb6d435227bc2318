// Package cli holds the recsched command tree.
package cli

import (
	"github.com/spf13/cobra"
)

func NewRoot() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "recsched",
		Short:         "Recording reservation scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewReservesCmd())
	cmd.AddCommand(NewVersionCmd())
	return cmd
}
