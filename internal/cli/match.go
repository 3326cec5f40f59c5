package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcoot/stakegame/internal/api/request"
	"github.com/mcoot/stakegame/internal/api/response"
	"github.com/mcoot/stakegame/internal/dependencies/random"
	"github.com/mcoot/stakegame/internal/model"
	"github.com/mcoot/stakegame/internal/services/commitment"
)

func newMatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match commands",
	}

	cmd.AddCommand(newMatchGetCmd())
	cmd.AddCommand(newMatchMoveCmd())
	cmd.AddCommand(newMatchCommitCmd())
	cmd.AddCommand(newMatchRevealCmd())

	return cmd
}

func newMatchGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <match-id>",
		Short: "Show match state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Match
			if err := client.Get("/api/v1/matches/"+args[0], &result); err != nil {
				return err
			}

			NewOutput(cmd.OutOrStdout(), cfg.Output).Print(result)
			return nil
		},
	}
}

func newMatchMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <match-id> <move-json>",
		Short: "Submit a move in a direct-move game",
		Long: `Submit a move as a JSON object, e.g.

  stakectl match move ROOM01-1 '{"type":"place","cell":4}'
  stakectl match move ROOM01-1 '{"type":"resign"}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !json.Valid([]byte(args[1])) {
				return errors.New("move must be valid JSON")
			}

			var result response.Match
			req := request.MoveRequest{Move: json.RawMessage(args[1])}
			if err := client.Post("/api/v1/matches/"+args[0]+"/moves", req, &result); err != nil {
				return err
			}

			NewOutput(cmd.OutOrStdout(), cfg.Output).Print(result)
			return nil
		},
	}
}

func newMatchCommitCmd() *cobra.Command {
	var salt string

	cmd := &cobra.Command{
		Use:   "commit <match-id> <rock|paper|scissors>",
		Short: "Commit to a hidden move",
		Long: `Commit to a rock-paper-scissors move without revealing it.

A random salt is generated unless --salt is given. The move and salt are
saved under the state directory so "match reveal" can open the commitment.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			matchID := args[0]
			move := model.RPSMove(args[1])
			if !move.Valid() {
				return fmt.Errorf("move must be rock, paper or scissors")
			}
			if salt == "" {
				salt = commitment.NewSalt(random.New())
			}
			hash := commitment.Encode(commitment.Hash(move, salt))

			var m response.Match
			if err := client.Post("/api/v1/matches/"+matchID+"/commit", request.CommitRequest{Hash: hash}, &m); err != nil {
				return err
			}

			if err := cfg.SaveCommit(PendingCommit{MatchID: matchID, Round: m.Round, Move: move, Salt: salt}); err != nil {
				return fmt.Errorf("committed, but failed to save the salt (%s): %w", salt, err)
			}

			NewOutput(cmd.OutOrStdout(), cfg.Output).Print(CommitResult{Match: m, Move: string(move), Salt: salt, Hash: hash})
			return nil
		},
	}

	cmd.Flags().StringVar(&salt, "salt", "", "Salt to commit with (random if unset)")

	return cmd
}

func newMatchRevealCmd() *cobra.Command {
	var move, salt string

	cmd := &cobra.Command{
		Use:   "reveal <match-id>",
		Short: "Reveal a committed move",
		Long: `Reveal the move and salt behind an earlier commitment. Without --move
and --salt the values saved by "match commit" are used.

A reveal that does not match the commitment forfeits the match.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			matchID := args[0]
			req := request.RevealRequest{Move: model.RPSMove(move), Salt: salt}
			if move == "" || salt == "" {
				saved, err := cfg.LoadCommit(matchID)
				if err != nil {
					return err
				}
				req.Move, req.Salt = saved.Move, saved.Salt
			}

			var result response.Match
			if err := client.Post("/api/v1/matches/"+matchID+"/reveal", req, &result); err != nil {
				return err
			}
			_ = cfg.ForgetCommit(matchID)

			NewOutput(cmd.OutOrStdout(), cfg.Output).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&move, "move", "", "Committed move")
	cmd.Flags().StringVar(&salt, "salt", "", "Committed salt")

	return cmd
}
