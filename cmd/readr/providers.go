package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/altic/readr/internal/app"
	"github.com/altic/readr/internal/chat"
	"github.com/altic/readr/internal/credentials"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List providers with their endpoint, model and credential status",
	Args:  cobra.NoArgs,
	RunE:  runProviders,
}

func runProviders(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	adapters := app.NewAdapters(e.cfg, e.logger)
	def := app.DefaultProvider(e.cfg)

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tMODEL\tBASE URL\tKEY\t")
	for _, info := range chat.Providers() {
		model := info.Model
		if a, err := adapters.Adapter(info.Provider); err == nil {
			if m, ok := a.(interface{ Model() string }); ok {
				model = m.Model()
			}
		}
		name := string(info.Provider)
		if info.Provider == def {
			name += " (default)"
		}
		key := "-"
		if credentials.Lookup(cmd.Context(), e.stores.Credentials, info.Provider) != "" {
			key = "stored"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", name, model, app.BaseURL(e.cfg, info.Provider), key)
	}
	return tw.Flush()
}
