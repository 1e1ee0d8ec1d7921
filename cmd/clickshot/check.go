package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/clickshot/internal/selector"
)

func newCheckCmd() *cobra.Command {
	var css, xpath string
	cmd := &cobra.Command{
		Use:   "check page.html",
		Short: "Test a selector against a saved page without a browser",
		Long: "Reports how many elements a CSS selector or XPath matches in a saved HTML page\n" +
			"and the canonical selector the recorder would store for each of them.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (css == "") == (xpath == "") {
				return errors.New("set exactly one of --css or --xpath")
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			doc, err := selector.ParseDocument(f)
			if err != nil {
				return err
			}

			var matches []selector.Match
			if css != "" {
				matches, err = selector.MatchCSS(doc, css)
			} else {
				matches, err = selector.MatchXPath(doc, xpath)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d match(es)\n", len(matches))
			for _, m := range matches {
				fmt.Fprintf(cmd.OutOrStdout(), "  <%s> %s\n", m.Tag, m.Canonical)
			}
			if len(matches) == 0 {
				return errors.New("selector matched nothing")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&css, "css", "", "CSS selector")
	cmd.Flags().StringVar(&xpath, "xpath", "", "XPath expression")
	return cmd
}
