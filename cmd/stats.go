package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/prospector/internal/monitoring"
)

var (
	statsSince time.Duration
	statsJSON  bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show search metrics and cache state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		hours := int(statsSince.Hours())
		if hours < 1 {
			hours = 1
		}

		snap, err := monitoring.NewCollector(st).Collect(ctx, hours)
		if err != nil {
			return eris.Wrap(err, "collect stats")
		}

		if statsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}

		formatSnapshot(os.Stdout, snap)
		return nil
	},
}

func init() {
	statsCmd.Flags().DurationVar(&statsSince, "since", 24*time.Hour, "lookback window, e.g. 24h or 72h")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print the snapshot as JSON")
	rootCmd.AddCommand(statsCmd)
}

func formatSnapshot(out io.Writer, snap *monitoring.Snapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "Searches (last %dh):\t%d\n", snap.LookbackHours, snap.SearchTotal)
	_, _ = fmt.Fprintf(w, "  Converged:\t%d\n", snap.SearchConverged)
	_, _ = fmt.Fprintf(w, "  Exhausted:\t%d\n", snap.SearchExhausted)
	_, _ = fmt.Fprintf(w, "  Partial:\t%d\n", snap.SearchPartial)
	_, _ = fmt.Fprintf(w, "Records accepted:\t%d\n", snap.RecordsAccepted)
	_, _ = fmt.Fprintf(w, "Cache hits:\t%d\n", snap.CacheHits)
	_, _ = fmt.Fprintf(w, "Cost:\t$%.2f\n", snap.CostUSD)
	if snap.SearchTotal > 0 {
		_, _ = fmt.Fprintf(w, "Avg iterations:\t%.1f\n", snap.AvgIterations)
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", float64(snap.AvgDurationMS)/1000)
	}
	_, _ = fmt.Fprintf(w, "Cache entries:\t%d (%d expired)\n", snap.CacheEntries, snap.CacheExpired)

	if len(snap.Categories) > 0 {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, "CATEGORY\tATTEMPTS\tPASSES\tSUCCESS")
		for _, cat := range snap.Categories {
			_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%.0f%%\n",
				cat.CategoryKey, cat.Attempts, cat.Passes, cat.SuccessRate*100)
		}
	}

	_ = w.Flush()
}
