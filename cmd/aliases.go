package main

import (
	"net/http"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/geo"
)

var (
	aliasesOut     string
	aliasesTempDir string
)

var aliasesCmd = &cobra.Command{
	Use:   "aliases",
	Short: "Manage the locality alias table",
}

var aliasesImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Build a metro alias file from Census CBSA data",
	Long:  "Downloads the Census Bureau CBSA shapefile, derives locality aliases from metropolitan-area names, and writes them as a YAML file loadable at startup via search.alias_file.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		out := aliasesOut
		if out == "" {
			out = cfg.Search.AliasFile
		}
		if out == "" {
			out = "aliases.yaml"
		}

		client := &http.Client{Timeout: 5 * time.Minute}
		count, err := geo.ImportMetroAliases(ctx, client, aliasesTempDir, out)
		if err != nil {
			return eris.Wrap(err, "aliases import")
		}

		zap.L().Info("alias file written", zap.String("path", out), zap.Int("entries", count))
		return nil
	},
}

func init() {
	aliasesImportCmd.Flags().StringVar(&aliasesOut, "out", "", "output path (default from search.alias_file, else aliases.yaml)")
	aliasesImportCmd.Flags().StringVar(&aliasesTempDir, "temp-dir", os.TempDir(), "working directory for the shapefile download")

	aliasesCmd.AddCommand(aliasesImportCmd)
	rootCmd.AddCommand(aliasesCmd)
}
