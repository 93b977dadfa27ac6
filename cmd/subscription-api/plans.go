package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/dmitrymomot/subscription-api/svc/subscription"
)

func newPlansCmd() *cobra.Command {
	var lang string

	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Print the plan catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tag, err := language.Parse(lang)
			if err != nil {
				return fmt.Errorf("invalid language %q: %w", lang, err)
			}
			cfg, err := loadAppConfig()
			if err != nil {
				return err
			}
			catalog, err := subscription.NewCatalog(cmd.Context(), plansSource(cfg))
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tPRICE")
			for _, p := range catalog.List() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.Name, p.Price.Format(tag))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "en-US", "language used to format prices")
	return cmd
}
