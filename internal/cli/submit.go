package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"votedesk.mini/vdk/internal/notify"
	"votedesk.mini/vdk/internal/types"
)

func newVoteCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "vote <candidate-id>",
		Short: "Cast a vote for a candidate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid candidate id %q", args[0])
			}
			return submit(cmd, g, types.VotePayload{CandidateID: id})
		},
	}
}

func newRegisterVoterCommand(g *globals) *cobra.Command {
	var p types.RegisterVoterPayload
	cmd := &cobra.Command{
		Use:   "register-voter",
		Short: "Register a voter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return submit(cmd, g, p)
		},
	}
	cmd.Flags().Uint64Var(&p.VoterID, "id", 0, "voter id (at least 1)")
	cmd.Flags().StringVar(&p.Name, "name", "", "voter name")
	cmd.Flags().Uint64Var(&p.Age, "age", 0, fmt.Sprintf("voter age (at least %d)", types.MinimumAge))
	cmd.Flags().StringVar(&p.Address, "address", "", "voter address")
	return cmd
}

func newAddCandidateCommand(g *globals) *cobra.Command {
	var p types.RegisterCandidatePayload
	cmd := &cobra.Command{
		Use:   "add-candidate",
		Short: "Add a candidate to the ballot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return submit(cmd, g, p)
		},
	}
	cmd.Flags().Uint64Var(&p.CandidateID, "id", 0, "candidate id (at least 1)")
	cmd.Flags().StringVar(&p.Name, "name", "", "candidate name")
	cmd.Flags().StringVar(&p.Party, "party", "", "party affiliation")
	cmd.Flags().Uint64Var(&p.Age, "age", 0, fmt.Sprintf("candidate age (at least %d)", types.MinimumAge))
	cmd.Flags().StringVar(&p.Qualification, "qualification", "", "qualification")
	return cmd
}

// submit validates payload, connects the wallet and waits for the action
// to be confirmed.
func submit(cmd *cobra.Command, g *globals, payload types.Payload) error {
	if err := payload.Validate(); err != nil {
		return err
	}

	ctx, cancel := g.deadline(cmd)
	defer cancel()

	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Connect(ctx); err != nil {
		return fmt.Errorf("wallet: %w", err)
	}
	g.logger.Info("wallet connected", "account", a.State().Account, "chain", a.State().ChainID)

	action, err := a.Submit(ctx, payload.Kind(), payload)
	if err != nil {
		if action.TxHash != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "transaction %s\n", action.TxHash)
		}
		return err
	}

	out := cmd.OutOrStdout()
	for _, msg := range a.Feed.GetRecent(-1) {
		if msg.Level == notify.LevelSuccess {
			fmt.Fprintln(out, msg.Text)
			break
		}
	}
	fmt.Fprintf(out, "transaction %s\n", action.TxHash)
	return nil
}
