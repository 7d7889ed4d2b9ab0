package main

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/export"
	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/pkg/notion"
)

var (
	searchIndustry string
	searchLocality string
	searchTarget   int
	searchSize     string
	searchTimeout  time.Duration
	searchCSVPath  string
	searchXLSXPath string
	searchToNotion bool
	searchToSF     bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run one discovery search",
	Long:  "Runs the full discovery pipeline for a natural-language request and prints the outcome as JSON. Flags override what the planner infers from the query.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initSearch(ctx, "search")
		if err != nil {
			return err
		}
		defer env.Close()

		req := model.SearchRequest{
			Query:       strings.Join(args, " "),
			Industry:    searchIndustry,
			Locality:    searchLocality,
			TargetCount: searchTarget,
		}
		if searchSize != "" {
			req.SizeBucket = model.ParseSizeBucket(searchSize)
		}

		timeout := searchTimeout
		if timeout <= 0 {
			timeout = time.Duration(cfg.Search.TimeoutSecs) * time.Second
		}
		searchCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		outcome, err := env.Searcher.Search(searchCtx, req)
		if err != nil {
			return eris.Wrap(err, "search")
		}

		zap.L().Info("search complete",
			zap.Int("records", len(outcome.Records)),
			zap.String("state", string(outcome.State)),
			zap.Int("iterations", outcome.Iterations),
			zap.Bool("partial", outcome.Partial),
			zap.Float64("cost_usd", outcome.Usage.CostUSD),
			zap.Duration("elapsed", outcome.Elapsed))

		if err := runExports(ctx, outcome.Records, searchCSVPath, searchXLSXPath, searchToNotion, searchToSF); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(outcome)
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchIndustry, "industry", "", "industry hint (skips planner inference)")
	searchCmd.Flags().StringVar(&searchLocality, "locality", "", "locality hint, e.g. \"Denver, CO\"")
	searchCmd.Flags().IntVar(&searchTarget, "target", 0, "number of records wanted (default from config)")
	searchCmd.Flags().StringVar(&searchSize, "size", "", "size bucket: small, mid, or large")
	searchCmd.Flags().DurationVar(&searchTimeout, "timeout", 0, "time budget, e.g. 90s (default from config)")
	searchCmd.Flags().StringVar(&searchCSVPath, "csv", "", "also write records to a CSV file")
	searchCmd.Flags().StringVar(&searchXLSXPath, "xlsx", "", "also write records to an XLSX workbook")
	searchCmd.Flags().BoolVar(&searchToNotion, "notion", false, "also push records to the Notion prospect database")
	searchCmd.Flags().BoolVar(&searchToSF, "salesforce", false, "also insert records as Salesforce leads")
	rootCmd.AddCommand(searchCmd)
}

// runExports dispatches the requested export targets in order and stops
// at the first failure.
func runExports(ctx context.Context, records []model.EntityRecord, csvPath, xlsxPath string, toNotion, toSalesforce bool) error {
	if csvPath != "" {
		if err := export.WriteCSV(records, csvPath); err != nil {
			return err
		}
		zap.L().Info("wrote csv", zap.String("path", csvPath), zap.Int("records", len(records)))
	}

	if xlsxPath != "" {
		if err := export.WriteXLSX(records, xlsxPath); err != nil {
			return err
		}
		zap.L().Info("wrote xlsx", zap.String("path", xlsxPath), zap.Int("records", len(records)))
	}

	if toNotion {
		if cfg.Notion.Token == "" || cfg.Notion.ProspectDB == "" {
			return eris.New("notion export requires PROSPECTOR_NOTION_TOKEN and PROSPECTOR_NOTION_PROSPECT_DB")
		}
		notionClient := notion.NewClient(cfg.Notion.Token)
		if _, err := export.NewNotion(notionClient, cfg.Notion.ProspectDB).Export(ctx, records); err != nil {
			return eris.Wrap(err, "notion export")
		}
	}

	if toSalesforce {
		sfClient, err := initSalesforce()
		if err != nil {
			return err
		}
		if _, err := export.NewSalesforce(sfClient).Export(ctx, records); err != nil {
			return eris.Wrap(err, "salesforce export")
		}
	}

	return nil
}
