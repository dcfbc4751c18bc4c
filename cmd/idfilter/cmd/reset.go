package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/IDFilter/pkg/view"
)

func newResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Discard the filtered view and restore the unfiltered evidence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			st, err := ctx.openStore(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer st.Close()

			publisher := view.NewPublisher(st, view.Options{Logger: logger})
			if err := publisher.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored unfiltered evidence in %s\n", st.Path())
			return nil
		},
	}
}
