package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newTabsCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "tabs",
		Short: "List the page tabs clickshot can drive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			tabs, err := a.Service.ListTabs(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TAB ID\tTITLE\tURL")
			for _, t := range tabs {
				fmt.Fprintf(w, "%s\t%s\t%s\n", t.TabID, t.Title, t.URL)
			}
			return w.Flush()
		},
	}
}
