package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vidscribe/internal/models"
	"vidscribe/internal/protocol"
)

func newModelCommand(ctx *commandContext) *cobra.Command {
	modelCmd := &cobra.Command{
		Use:   "model",
		Short: "Check and fetch transcription models",
	}
	modelCmd.AddCommand(newModelListCommand(ctx))
	modelCmd.AddCommand(newModelVerifyCommand(ctx))
	modelCmd.AddCommand(newModelDownloadCommand(ctx))
	return modelCmd
}

func newModelListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List supported models and whether they are cached",
		Long:  "List supported models. Presence is read from the cache directory without running a worker.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			records := models.ScanAll(cfg.Transcription.ModelCacheDir)
			if jsonOutput {
				return writeJSON(cmd, records)
			}
			rows := make([][]string, 0, len(records))
			for i, rec := range records {
				info := models.Catalog[i]
				size := rec.Size
				if size == "" {
					size = "-"
				}
				rows = append(rows, []string{
					info.Name,
					info.ApproxSize(),
					yesNo(rec.Exists),
					size,
					info.Description,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderTable(tableSpec{
				headers: []string{"Model", "Approx", "Cached", "On disk", "Notes"},
				aligns:  []columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignLeft},
			}, rows))
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Cache directory: %s\n", cfg.Transcription.ModelCacheDir)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newModelVerifyCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "verify <model>",
		Short: "Ask the verify worker whether a model is downloaded",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()

			rec, err := rt.models().Verify(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, rec)
			}
			out := cmd.OutOrStdout()
			if rec.Exists {
				fmt.Fprintf(out, "Model %s is downloaded\n", rec.Model)
				fmt.Fprintf(out, "  Path: %s\n", rec.Path)
				if rec.Size != "" {
					fmt.Fprintf(out, "  Size: %s\n", rec.Size)
				}
				return nil
			}
			fmt.Fprintf(out, "Model %s is not downloaded\n", rec.Model)
			if rec.Message != "" {
				fmt.Fprintf(out, "  %s\n", rec.Message)
			}
			if rec.CacheDir != "" {
				fmt.Fprintf(out, "  Cache directory: %s\n", rec.CacheDir)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newModelDownloadCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "download <model>",
		Short: "Download a model into the cache directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()

			if info, ok := models.Lookup(args[0]); ok && !jsonOutput {
				fmt.Fprintf(cmd.ErrOrStderr(), "Downloading %s (about %s)\n", info.Name, info.ApproxSize())
			}
			stderr := cmd.ErrOrStderr()
			result, err := rt.models().Download(cmd.Context(), args[0], func(ev protocol.Event) {
				if jsonOutput {
					return
				}
				switch ev.Kind {
				case protocol.EventProgress:
					fmt.Fprintf(stderr, "[%d/%d] %s\n", ev.Current, ev.Total, progressBar(ev.Current, ev.Total, 24))
				case protocol.EventLog:
					// The trailing JSON result is printed below.
					if text := strings.TrimSpace(ev.Text); text != "" && !strings.HasPrefix(text, "{") {
						fmt.Fprintf(stderr, "  %s\n", text)
					}
				}
			})
			if jsonOutput && result.Model != "" {
				if werr := writeJSON(cmd, result); werr != nil {
					return werr
				}
			}
			if err != nil {
				return err
			}
			if !jsonOutput {
				fmt.Fprintf(cmd.OutOrStdout(), "Model %s downloaded to %s (%s)\n", result.Model, result.Path, result.Size)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
