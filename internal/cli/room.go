package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcoot/stakegame/internal/api/request"
	"github.com/mcoot/stakegame/internal/api/response"
	"github.com/mcoot/stakegame/internal/model"
)

func newRoomCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "room",
		Short: "Room commands",
	}

	cmd.AddCommand(newRoomCreateCmd())
	cmd.AddCommand(newRoomListCmd())
	cmd.AddCommand(newRoomGetCmd())
	cmd.AddCommand(newRoomJoinCmd())
	cmd.AddCommand(newRoomActionCmd("leave", "Leave a room"))
	cmd.AddCommand(newRoomActionCmd("cancel", "Cancel a waiting room (owner only)"))

	return cmd
}

func newRoomCreateCmd() *cobra.Command {
	var (
		game     string
		stake    string
		feeBps   int
		private  bool
		joinCode string
		rules    []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a room",
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := model.ParseAmount(stake)
			if err != nil {
				return fmt.Errorf("invalid --stake: %w", err)
			}

			req := request.CreateRoomRequest{
				GameKind: model.GameKind(game),
				Stake:    amount,
				Privacy:  model.PrivacyPublic,
			}
			if cmd.Flags().Changed("fee-bps") {
				req.FeeBps = &feeBps
			}
			if private {
				req.Privacy = model.PrivacyPrivate
				req.JoinCode = joinCode
			}
			if len(rules) > 0 {
				req.Rules = make(map[string]string, len(rules))
				for _, r := range rules {
					k, v, ok := strings.Cut(r, "=")
					if !ok {
						return fmt.Errorf("rule %q must be key=value", r)
					}
					req.Rules[k] = v
				}
			}

			var result response.Room
			if err := client.Post("/api/v1/rooms", req, &result); err != nil {
				return err
			}

			NewOutput(cmd.OutOrStdout(), cfg.Output).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&game, "game", string(model.GameRockPaperScissors), "Game kind: rps, tictactoe, chess, checkers, durak")
	cmd.Flags().StringVar(&stake, "stake", "", "Stake per player, e.g. 0.5 (required)")
	cmd.Flags().IntVar(&feeBps, "fee-bps", 0, "Admin fee in basis points (server default if unset)")
	cmd.Flags().BoolVar(&private, "private", false, "Require a join code")
	cmd.Flags().StringVar(&joinCode, "join-code", "", "Join code for private rooms")
	cmd.Flags().StringSliceVar(&rules, "rule", nil, "Game rule as key=value, repeatable")
	_ = cmd.MarkFlagRequired("stake")

	return cmd
}

func newRoomListCmd() *cobra.Command {
	var (
		game           string
		stake          string
		status         string
		includePrivate bool
		page           int
		limit          int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rooms, waiting ones by default",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]string{
				"game_kind": game,
				"stake":     stake,
				"status":    status,
			}
			if includePrivate {
				params["include_private"] = "true"
			}
			if page > 0 {
				params["page"] = strconv.Itoa(page)
			}
			if limit > 0 {
				params["limit"] = strconv.Itoa(limit)
			}

			var result response.RoomList
			if err := client.GetQuery("/api/v1/rooms", params, &result); err != nil {
				return err
			}

			NewOutput(cmd.OutOrStdout(), cfg.Output).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&game, "game", "", "Filter by game kind")
	cmd.Flags().StringVar(&stake, "stake", "", "Filter by stake")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().BoolVar(&includePrivate, "include-private", false, "Include private rooms")
	cmd.Flags().IntVar(&page, "page", 0, "Page number")
	cmd.Flags().IntVar(&limit, "limit", 0, "Rooms per page")

	return cmd
}

func newRoomGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <room-id>",
		Short: "Show a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Room
			if err := client.Get("/api/v1/rooms/"+args[0], &result); err != nil {
				return err
			}

			NewOutput(cmd.OutOrStdout(), cfg.Output).Print(result)
			return nil
		},
	}
}

func newRoomJoinCmd() *cobra.Command {
	var joinCode string

	cmd := &cobra.Command{
		Use:   "join <room-id>",
		Short: "Join a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Room
			req := request.JoinRoomRequest{JoinCode: joinCode}
			if err := client.Post("/api/v1/rooms/"+args[0]+"/join", req, &result); err != nil {
				return err
			}

			NewOutput(cmd.OutOrStdout(), cfg.Output).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&joinCode, "join-code", "", "Join code for private rooms")

	return cmd
}

func newRoomActionCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <room-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Room
			if err := client.Post("/api/v1/rooms/"+args[0]+"/"+action, nil, &result); err != nil {
				return err
			}

			NewOutput(cmd.OutOrStdout(), cfg.Output).Print(result)
			return nil
		},
	}
}
