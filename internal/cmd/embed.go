package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PauloHFS/guidebot/internal/ingest"
)

var embedOpts ingest.EmbedOptions

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Embed the downloaded posts into the vector index",
	Long: `Reads the posts written by fetch, embeds each one and upserts it into the
vector index by slug. Posts whose update time is unchanged are skipped.`,
	Args: cobra.NoArgs,
	RunE: runEmbed,
}

func init() {
	embedCmd.Flags().BoolVar(&embedOpts.Force, "force", false, "re-embed posts even when unchanged")
	embedCmd.Flags().BoolVar(&embedOpts.Prune, "prune", false, "delete indexed posts missing from the posts index")
	rootCmd.AddCommand(embedCmd)
}

func runEmbed(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	p, err := newPipeline(ctx, appConfig)
	if err != nil {
		return err
	}
	defer p.Close()

	pool, err := newPool(appConfig, "embed_post")
	if err != nil {
		return err
	}
	defer pool.Release()

	job := ingest.NewEmbedJob(
		ingest.NewStorage(appConfig.PostsDir),
		p.embedder,
		p.index,
		pool,
		embedOpts,
	)
	report, err := job.Run(ctx)

	total, cerr := p.index.Count(ctx)
	if cerr != nil {
		total = -1
	}
	fmt.Fprintf(cmd.OutOrStdout(),
		"embedded %d, skipped %d, missing %d, failed %d, pruned %d of %d posts (%d indexed)\n",
		report.Embedded, report.Skipped, report.Missing, report.Failed, report.Pruned, report.Total, total)
	return err
}
