package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/mcoot/stakegame/internal/api/request"
	"github.com/mcoot/stakegame/internal/api/response"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Operator commands (require --admin-token)",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfg.AdminToken == "" {
				return errors.New("--admin-token or STAKEGAME_ADMIN_TOKEN is required")
			}
			client = NewClient(cfg.ServerURL, cfg.AdminToken)
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "cancel-match <match-id>",
		Short: "Cancel an active match and refund its escrow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Match
			if err := client.Post("/api/v1/admin/matches/"+args[0]+"/cancel", nil, &result); err != nil {
				return err
			}

			NewOutput(cmd.OutOrStdout(), cfg.Output).Print(result)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "executed <match-id> <tx-ref>",
		Short: "Record the transaction that executed a settlement",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Escrow
			req := request.RecordExecutionRequest{TxRef: args[1]}
			if err := client.Post("/api/v1/admin/escrow/"+args[0]+"/executed", req, &result); err != nil {
				return err
			}

			NewOutput(cmd.OutOrStdout(), cfg.Output).Print(result)
			return nil
		},
	})

	return cmd
}
