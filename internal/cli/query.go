package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"votedesk.mini/vdk/internal/results"
	"votedesk.mini/vdk/internal/types"
)

func newStatusCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Read the contract once and print the dashboard counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := g.deadline(cmd)
			defer cancel()

			a, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			snap, err := a.Refresh(ctx)
			printStatus(cmd.OutOrStdout(), a.ContractAddress().Hex(), a.State(), snap)
			return err
		},
	}
}

func newResultsCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "results",
		Short: "Print candidates ranked by votes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := g.deadline(cmd)
			defer cancel()

			a, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			snap, err := a.Refresh(ctx)
			if err != nil {
				return err
			}
			printResults(cmd.OutOrStdout(), results.Rank(snap))
			return nil
		},
	}
}

func printStatus(out io.Writer, contract string, conn types.ConnectionState, snap *types.Snapshot) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "Contract\t%s\n", contract)
	wallet := string(conn.Phase)
	if conn.IsConnected() {
		wallet = fmt.Sprintf("%s (chain %s)", conn.Account, conn.ChainID)
	}
	fmt.Fprintf(tw, "Wallet\t%s\n", wallet)
	if snap == nil {
		fmt.Fprintf(tw, "State\tunavailable\n")
		return
	}
	voting := "closed"
	if snap.VotingOpen() {
		voting = "open"
	}
	fmt.Fprintf(tw, "Voters\t%s\n", humanize.Comma(int64(len(snap.Voters))))
	fmt.Fprintf(tw, "Candidates\t%s\n", humanize.Comma(int64(len(snap.Candidates))))
	fmt.Fprintf(tw, "Votes\t%s\n", humanize.Comma(int64(snap.TotalVotes)))
	fmt.Fprintf(tw, "Voting\t%s\n", voting)
	if len(snap.Partial) > 0 {
		fmt.Fprintf(tw, "Unavailable\t%v\n", snap.Partial)
	}
	fmt.Fprintf(tw, "Updated\t%s\n", humanize.Time(snap.FetchedAt))
}

func printResults(out io.Writer, summary results.Summary) {
	if len(summary.Standings) == 0 {
		fmt.Fprintln(out, "No candidates registered.")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tID\tNAME\tPARTY\tVOTES\tSHARE")
	for _, s := range summary.Standings {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%.1f%%\n",
			humanize.Ordinal(s.Rank), s.Candidate.ID, s.Candidate.Name, s.Candidate.Party,
			humanize.Comma(int64(s.Candidate.VoteCount)), s.Share)
	}
	tw.Flush()

	fmt.Fprintf(out, "\n%s votes cast by %s registered voters.\n",
		humanize.Comma(int64(summary.TotalVotes)), humanize.Comma(int64(summary.TotalVoters)))
	if summary.Winner != nil {
		fmt.Fprintf(out, "Leading: %s (%s)\n", summary.Winner.Name, summary.Winner.Party)
	} else {
		fmt.Fprintln(out, "No leader yet.")
	}
}
