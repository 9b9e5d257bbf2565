package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"vidscribe/internal/deps"
	"vidscribe/internal/preflight"
)

type doctorReport struct {
	ConfigPath   string             `json:"configPath"`
	ConfigExists bool               `json:"configExists"`
	Checks       []preflight.Result `json:"checks"`
	Dependencies []deps.Status      `json:"dependencies"`
	Healthy      bool               `json:"healthy"`
}

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var skipLLM bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check folders, worker scripts, system tools, and the synthesis provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			report := doctorReport{
				ConfigPath:   ctx.configPath,
				ConfigExists: ctx.configExists,
				Checks:       preflight.RunAll(cmd.Context(), cfg, preflight.Options{CheckProvider: !skipLLM}),
				Dependencies: preflight.CheckSystemDeps(cfg),
			}
			report.Healthy = len(preflight.Failed(report.Checks)) == 0
			for _, dep := range report.Dependencies {
				if !dep.Available && !dep.Optional {
					report.Healthy = false
				}
			}

			if jsonOutput {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
			} else {
				printDoctorReport(cmd, report)
			}
			if !report.Healthy {
				return errors.New("doctor found problems")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&skipLLM, "skip-llm", false, "Do not contact the synthesis provider")
	return cmd
}

func printDoctorReport(cmd *cobra.Command, report doctorReport) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("Configuration", colorize) {
		fmt.Fprintln(out, line)
	}
	if report.ConfigExists {
		fmt.Fprintln(out, renderStatusLine("Config file", statusOK, report.ConfigPath, colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Config file", statusInfo, report.ConfigPath+" (not found, using defaults)", colorize))
	}

	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Checks", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, r := range report.Checks {
		kind := statusOK
		if !r.Passed {
			kind = statusError
		}
		fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
	}

	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("System tools", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, dep := range report.Dependencies {
		kind := statusOK
		detail := dep.Command
		switch {
		case !dep.Available && dep.Optional:
			kind = statusWarn
			detail = dep.Detail
		case !dep.Available:
			kind = statusError
			detail = dep.Detail
		}
		fmt.Fprintln(out, renderStatusLine(dep.Name, kind, detail, colorize))
	}
}
