package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/PauloHFS/guidebot/internal/rag"
)

var askRaw bool

var askCmd = &cobra.Command{
	Use:   "ask <question...>",
	Short: "Answer a question from the indexed help center",
	Long: `Embeds the question, retrieves the closest help center posts and prints the
model's answer followed by the posts it was given.`,
	Example: `  guidebot ask 환불은 어떻게 하나요?`,
	RunE:    runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askRaw, "raw", false, "print the answer without markdown rendering")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("%w: guidebot ask <question...>", errUsage)
	}

	answerer, closeIndex, err := newAnswerer(cmd.Context(), appConfig)
	if err != nil {
		return err
	}
	defer closeIndex()

	ans, err := answerer.Answer(cmd.Context(), question)
	if err != nil {
		return fmt.Errorf("failed to answer: %w", err)
	}

	return printAnswer(cmd.OutOrStdout(), ans, askRaw)
}

func printAnswer(out io.Writer, ans *rag.Answer, raw bool) error {
	text := ans.Text
	if !raw {
		rendered, err := renderMarkdown(text)
		if err != nil {
			return err
		}
		text = rendered
	}

	fmt.Fprintln(out, strings.TrimRight(text, "\n"))

	if len(ans.Sources) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "[참고 문서]")
	for _, src := range ans.Sources {
		fmt.Fprintf(out, "- %s (%s)\n", src.Title, src.Slug)
	}
	return nil
}

func renderMarkdown(text string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	out, err := r.Render(text)
	if err != nil {
		return "", fmt.Errorf("failed to render answer: %w", err)
	}
	return out, nil
}
