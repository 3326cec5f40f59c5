package cli

import (
	"github.com/spf13/cobra"

	"github.com/mcoot/stakegame/internal/api/response"
)

func newEscrowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "escrow",
		Short: "Escrow commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <match-id>",
		Short: "Show a match's escrow and settlement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Escrow
			if err := client.Get("/api/v1/escrow/"+args[0], &result); err != nil {
				return err
			}

			NewOutput(cmd.OutOrStdout(), cfg.Output).Print(result)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "deposit <match-id>",
		Short: "Show how to fund your stake",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.DepositIntent
			if err := client.Get("/api/v1/escrow/"+args[0]+"/deposit-intent", &result); err != nil {
				return err
			}

			NewOutput(cmd.OutOrStdout(), cfg.Output).Print(result)
			return nil
		},
	})

	return cmd
}
