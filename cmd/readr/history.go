package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/altic/readr/internal/chat"
	"github.com/altic/readr/internal/ledger"
)

var (
	historyProviders []string
	historySurface   string
	historyLimit     int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent sessions from the ledger",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	f := historyCmd.Flags()
	f.StringSliceVar(&historyProviders, "provider", nil, "only these providers")
	f.StringVar(&historySurface, "surface", "", "only this surface")
	f.IntVarP(&historyLimit, "limit", "n", 20, "number of entries")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	filter := ledger.Filter{Surface: historySurface, Limit: historyLimit}
	for _, name := range historyProviders {
		p, err := chat.ParseProvider(name)
		if err != nil {
			return err
		}
		filter.Providers = append(filter.Providers, p)
	}

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	summary, err := e.stores.Ledger.Summary(cmd.Context(), filter)
	if err != nil {
		return err
	}
	entries, err := e.stores.Ledger.ListRecent(cmd.Context(), filter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "sessions=%d completed=%d cancelled=%d failed=%d output_chars=%d\n",
		summary.Sessions, summary.Completed, summary.Cancelled, summary.Failed, summary.OutputChars)
	if len(entries) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSURFACE\tPROVIDER\tOUTCOME\tCHARS\tDURATION\tERROR\t")
	for _, en := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t\n",
			en.StartedAt.Local().Format(time.DateTime), en.Surface, en.Provider, en.Outcome,
			en.OutputChars, en.Duration().Round(time.Millisecond), oneLine(en.Error))
	}
	return tw.Flush()
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 60 {
		return string(r[:57]) + "..."
	}
	return s
}
