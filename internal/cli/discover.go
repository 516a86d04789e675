package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"votedesk.mini/vdk/internal/discovery"
)

func newDiscoverCommand(g *globals) *cobra.Command {
	var (
		wait time.Duration
		same bool
	)
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List votedesk dashboards announced on the LAN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()

			found, err := discovery.Browse(ctx, g.logger.With("component", "mdns"))
			if err != nil {
				return err
			}
			if same {
				found = discovery.Watching(found, g.cfg.ContractAddress)
			}
			printDashboards(cmd.OutOrStdout(), found)
			return nil
		},
	}
	cmd.Flags().DurationVarP(&wait, "wait", "w", 3*time.Second, "how long to listen for announcements")
	cmd.Flags().BoolVar(&same, "same-contract", false, "only list dashboards watching the configured contract")
	return cmd
}

func printDashboards(out io.Writer, found []discovery.Dashboard) {
	if len(found) == 0 {
		fmt.Fprintln(out, "No dashboards found.")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INSTANCE\tURL\tCHAIN\tCONTRACT")
	for _, d := range found {
		chain := "-"
		if d.ChainID != 0 {
			chain = strconv.FormatUint(d.ChainID, 10)
		}
		contract := d.Contract
		if contract == "" {
			contract = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Instance, d.URL(), chain, contract)
	}
	tw.Flush()
}
