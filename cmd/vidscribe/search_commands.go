package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"vidscribe/internal/retrieval"
	"vidscribe/internal/synthesis"
)

type searchFlags struct {
	output     string
	jsonOutput bool
}

func (f *searchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Folder holding the transcripts (default paths.output_dir)")
	cmd.Flags().BoolVar(&f.jsonOutput, "json", false, "Output as JSON")
}

func newSearchCommand(ctx *commandContext) *cobra.Command {
	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "Search the transcripts in an output folder",
	}
	searchCmd.AddCommand(newKeywordSearchCommand(ctx))
	searchCmd.AddCommand(newSemanticSearchCommand(ctx))
	searchCmd.AddCommand(newAskCommand(ctx))
	searchCmd.AddCommand(newIndexCommand(ctx))
	return searchCmd
}

func newKeywordSearchCommand(ctx *commandContext) *cobra.Command {
	var flags searchFlags
	var caseSensitive bool

	cmd := &cobra.Command{
		Use:   "keyword <query>",
		Short: "Find literal matches",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()
			folder, err := outputFolder(rt.cfg, flags.output)
			if err != nil {
				return err
			}
			engine, err := rt.engine()
			if err != nil {
				return err
			}
			results, err := engine.Keyword(cmd.Context(), folder, strings.Join(args, " "), caseSensitive)
			if err != nil {
				return err
			}
			return printResults(cmd, flags.jsonOutput, results, false)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&caseSensitive, "case-sensitive", false, "Match letter case exactly")
	return cmd
}

func newSemanticSearchCommand(ctx *commandContext) *cobra.Command {
	var flags searchFlags

	cmd := &cobra.Command{
		Use:   "semantic <query>",
		Short: "Rank segments by similarity to the query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(runtimeOptions{store: true})
			if err != nil {
				return err
			}
			defer rt.Close()
			folder, err := outputFolder(rt.cfg, flags.output)
			if err != nil {
				return err
			}
			engine, err := rt.engine()
			if err != nil {
				return err
			}
			results, err := engine.Semantic(cmd.Context(), folder, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printResults(cmd, flags.jsonOutput, results, true)
		},
	}
	flags.register(cmd)
	return cmd
}

func newAskCommand(ctx *commandContext) *cobra.Command {
	var flags searchFlags
	var provider, apiKey, model string

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the most relevant transcript segments",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(runtimeOptions{store: true})
			if err != nil {
				return err
			}
			defer rt.Close()
			folder, err := outputFolder(rt.cfg, flags.output)
			if err != nil {
				return err
			}
			engine, err := rt.engine()
			if err != nil {
				return err
			}
			if strings.TrimSpace(provider) != "" || strings.TrimSpace(model) != "" || strings.TrimSpace(apiKey) != "" {
				synth, err := synthesis.NewService(rt.cfg.LLMFor(provider, apiKey, model), rt.logger)
				if err != nil {
					return err
				}
				engine = engine.WithSynthesis(synth)
			}
			answer, err := engine.Ask(cmd.Context(), folder, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if flags.jsonOutput {
				return writeJSON(cmd, answer)
			}
			printAnswer(cmd.OutOrStdout(), answer)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&provider, "llm-provider", "", "Override the configured synthesis provider")
	cmd.Flags().StringVar(&apiKey, "llm-api-key", "", "API key for the override provider")
	cmd.Flags().StringVar(&model, "llm-model", "", "Model name for the synthesis provider")
	return cmd
}

func newIndexCommand(ctx *commandContext) *cobra.Command {
	var flags searchFlags

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Count transcripts and warm the embedding cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(runtimeOptions{store: true})
			if err != nil {
				return err
			}
			defer rt.Close()
			folder, err := outputFolder(rt.cfg, flags.output)
			if err != nil {
				return err
			}
			engine, err := rt.engine()
			if err != nil {
				return err
			}
			summary, err := engine.Index(cmd.Context(), folder)
			if err != nil {
				return err
			}
			if flags.jsonOutput {
				return writeJSON(cmd, summary)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Folder:   %s\n", summary.Folder)
			fmt.Fprintf(out, "Indexed:  %d transcript(s), %d segment(s)\n", summary.Indexed, summary.Segments)
			if summary.Skipped > 0 {
				fmt.Fprintf(out, "Skipped:  %d unreadable or partial file(s)\n", summary.Skipped)
			}
			if summary.Embedder != "" {
				fmt.Fprintf(out, "Embedder: %s\n", summary.Embedder)
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func printResults(cmd *cobra.Command, jsonOutput bool, results []retrieval.Result, scored bool) error {
	if jsonOutput {
		if results == nil {
			results = []retrieval.Result{}
		}
		return writeJSON(cmd, map[string]any{"results": results})
	}
	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "No matches")
		return nil
	}
	colorize := shouldColorize(out)
	headers := []string{"Transcript", "Time", "Speaker", "Excerpt"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft}
	if scored {
		headers = append(headers, "Score")
		aligns = append(aligns, alignRight)
	}
	var rows [][]string
	total := 0
	for _, res := range results {
		total += res.MatchCount
		for _, m := range res.Matches {
			excerpt := m.Highlight
			if excerpt == "" {
				excerpt = m.Text
			}
			row := []string{res.FileName, m.Timestamp, m.Speaker, highlightMatches(excerpt, colorize)}
			if scored {
				row = append(row, fmt.Sprintf("%.3f", m.RelevanceScore))
			}
			rows = append(rows, row)
		}
	}
	fmt.Fprint(out, renderTable(tableSpec{headers: headers, aligns: aligns, wrap: []int{4}}, rows))
	fmt.Fprintln(out)
	fmt.Fprintf(out, "%d match(es) in %d transcript(s)\n", total, len(results))
	return nil
}

func printAnswer(out io.Writer, answer retrieval.Answer) {
	fmt.Fprintln(out, strings.TrimSpace(answer.Answer))
	if len(answer.Sources) == 0 {
		return
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Sources:")
	for i, src := range answer.Sources {
		label := src.FileName
		if src.Timestamp != "" {
			label += " [" + src.Timestamp + "]"
		}
		if src.Speaker != "" {
			label += " " + src.Speaker
		}
		fmt.Fprintf(out, "  %d. %s (%.2f)\n", i+1, label, src.RelevanceScore)
	}
}
