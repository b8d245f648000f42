package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newClientsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clients",
		Short: "List the OAuth clients the configuration registers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CLIENT ID\tTYPE\tGRANTS\tREDIRECT URIS")
			for _, c := range cfg.RegistryClients() {
				kind := "public"
				if c.IsConfidential {
					kind = "confidential"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					c.ClientID, kind, strings.Join(c.GrantTypes, ","), strings.Join(c.RedirectURIs, ","))
			}
			return tw.Flush()
		},
	}
}
