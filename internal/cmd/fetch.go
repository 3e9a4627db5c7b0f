package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PauloHFS/guidebot/internal/ingest"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download every help center post into the posts directory",
	Long: `Lists the posts of the Ghost content API, writes index.json and one
<slug>.json file per post with its HTML flattened to plain text.`,
	Args: cobra.NoArgs,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, _ []string) error {
	client, err := newGhostClient(appConfig)
	if err != nil {
		return err
	}

	pool, err := newPool(appConfig, "fetch_post")
	if err != nil {
		return err
	}
	defer pool.Release()

	storage := ingest.NewStorage(appConfig.PostsDir)
	report, err := ingest.NewFetchJob(client, storage, pool).Run(cmd.Context())

	fmt.Fprintf(cmd.OutOrStdout(), "fetched %d of %d posts into %s (%d failed)\n",
		report.Saved, report.Listed, storage.Dir(), report.Failed)
	return err
}
