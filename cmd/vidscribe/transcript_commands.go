package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"vidscribe/internal/fileutil"
	"vidscribe/internal/synthesis"
	"vidscribe/internal/textutil"
	"vidscribe/internal/transcript"
)

func newTranscriptCommand(ctx *commandContext) *cobra.Command {
	transcriptCmd := &cobra.Command{
		Use:   "transcript",
		Short: "Work with individual transcript files",
	}
	transcriptCmd.AddCommand(newTranscriptConvertCommand(ctx))
	transcriptCmd.AddCommand(newTranscriptProcessCommand(ctx))
	return transcriptCmd
}

func newTranscriptConvertCommand(ctx *commandContext) *cobra.Command {
	var to, target string
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "convert <transcript>",
		Short: "Rewrite a transcript in the other layout (txt or md)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()

			t, err := transcript.NewStore(rt.logger).Load(args[0])
			if err != nil {
				return fmt.Errorf("load %s: %w", args[0], err)
			}
			format := transcript.Format(strings.ToLower(strings.TrimSpace(to)))
			if format == "" {
				format = transcript.FormatMD
				if t.Format == transcript.FormatMD {
					format = transcript.FormatTXT
				}
			}
			if format != transcript.FormatTXT && format != transcript.FormatMD {
				return fmt.Errorf("unknown format %q (expected txt or md)", to)
			}
			data, err := transcript.Render(format, t)
			if err != nil {
				return err
			}

			dest := strings.TrimSpace(target)
			if dest == "" {
				dest = filepath.Join(filepath.Dir(t.Path), transcript.FileName(t.Name, format))
			}
			if err := writeOutput(dest, data, overwrite); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", dest)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "Target layout: txt or md (default: the other one)")
	cmd.Flags().StringVarP(&target, "out", "O", "", "Destination file (default beside the source)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing destination")
	return cmd
}

func newTranscriptProcessCommand(ctx *commandContext) *cobra.Command {
	var templateName, provider, apiKey, model, target string
	var toStdout, overwrite bool

	cmd := &cobra.Command{
		Use:   "process <transcript>",
		Short: "Run a post-processing template over a transcript",
		Long: `Run a post-processing template (see 'vidscribe templates') over a
transcript with the synthesis provider and save the result beside it as
<name>_<template>.md.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()

			t, err := transcript.NewStore(rt.logger).Load(args[0])
			if err != nil {
				return fmt.Errorf("load %s: %w", args[0], err)
			}
			name := strings.TrimSpace(templateName)
			if name == "" {
				name = rt.cfg.LLM.Template
			}
			if name == "" {
				name = synthesis.DefaultTemplate
			}

			synth, err := synthesis.NewService(rt.cfg.LLMFor(provider, apiKey, model), rt.logger)
			if err != nil {
				return err
			}
			if _, ok := synth.Catalog().Lookup(name); !ok {
				return fmt.Errorf("unknown template %q (see 'vidscribe templates')", name)
			}
			text, err := synth.Apply(cmd.Context(), name, t.Text())
			if err != nil {
				return err
			}

			if toStdout {
				fmt.Fprintln(cmd.OutOrStdout(), text)
				return nil
			}
			dest := strings.TrimSpace(target)
			if dest == "" {
				fileName := textutil.SanitizeFileName(t.Name + "_" + name) + ".md"
				dest = filepath.Join(filepath.Dir(t.Path), fileName)
			}
			if err := writeOutput(dest, []byte(text+"\n"), overwrite); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", dest)
			return nil
		},
	}
	cmd.Flags().StringVarP(&templateName, "template", "t", "", "Template name (default llm.template, then clean)")
	cmd.Flags().StringVar(&provider, "llm-provider", "", "Override the configured synthesis provider")
	cmd.Flags().StringVar(&apiKey, "llm-api-key", "", "API key for the override provider")
	cmd.Flags().StringVar(&model, "llm-model", "", "Model name for the synthesis provider")
	cmd.Flags().StringVarP(&target, "out", "O", "", "Destination file")
	cmd.Flags().BoolVar(&toStdout, "stdout", false, "Print the result instead of writing a file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing destination")
	return cmd
}

func writeOutput(dest string, data []byte, overwrite bool) error {
	dest, err := filepath.Abs(dest)
	if err != nil {
		return fmt.Errorf("resolve destination: %w", err)
	}
	if !overwrite && fileutil.Exists(dest) {
		return fmt.Errorf("%s already exists (use --overwrite to replace it)", dest)
	}
	if err := fileutil.WriteFileAtomic(dest, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return nil
}
