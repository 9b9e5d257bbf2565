package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"vidscribe/internal/store"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect batch job history",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent batch jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(runtimeOptions{store: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			records, err := rt.store.ListJobs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				if records == nil {
					records = []store.JobRecord{}
				}
				return writeJSON(cmd, records)
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No batch jobs recorded")
				return nil
			}
			now := time.Now()
			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, []string{
					shortJobID(rec.ID),
					string(rec.Status),
					rec.Model,
					fmt.Sprintf("%d/%d", rec.Processed, rec.Total),
					fmt.Sprintf("%d", len(rec.FailedFiles)),
					humanize.Time(rec.StartedAt),
					rec.Elapsed(now).Round(time.Second).String(),
				})
			}
			fmt.Fprint(out, renderTable(tableSpec{
				headers: []string{"ID", "Status", "Model", "Files", "Failed", "Started", "Elapsed"},
				aligns:  []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignRight},
			}, rows))
			fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of jobs to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one batch job",
		Long:  "Show one batch job. A unique prefix of the id is enough.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(runtimeOptions{store: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			rec, err := findJob(cmd, rt.store, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, rec)
			}
			printJob(cmd, rec)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

// findJob resolves a full id, or a prefix matching exactly one recent job.
func findJob(cmd *cobra.Command, st *store.Store, id string) (store.JobRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return store.JobRecord{}, errors.New("job id is required")
	}
	rec, err := st.GetJob(cmd.Context(), id)
	if err != nil {
		return store.JobRecord{}, err
	}
	if rec != nil {
		return *rec, nil
	}
	records, err := st.ListJobs(cmd.Context(), 500)
	if err != nil {
		return store.JobRecord{}, err
	}
	var matches []store.JobRecord
	for _, r := range records {
		if strings.HasPrefix(r.ID, id) {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 0:
		return store.JobRecord{}, fmt.Errorf("job %s not found", id)
	case 1:
		return matches[0], nil
	default:
		return store.JobRecord{}, fmt.Errorf("job id %s is ambiguous (%d matches)", id, len(matches))
	}
}

func printJob(cmd *cobra.Command, rec store.JobRecord) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job:        %s\n", rec.ID)
	fmt.Fprintf(out, "Status:     %s\n", rec.Status)
	fmt.Fprintf(out, "Model:      %s (%s)\n", rec.Model, rec.Format)
	fmt.Fprintf(out, "Output:     %s\n", rec.OutputDir)
	fmt.Fprintf(out, "Progress:   %d/%d\n", rec.Processed, rec.Total)
	fmt.Fprintf(out, "Started:    %s (%s)\n", rec.StartedAt.Local().Format(time.DateTime), humanize.Time(rec.StartedAt))
	if rec.FinishedAt != nil {
		fmt.Fprintf(out, "Finished:   %s after %s\n", rec.FinishedAt.Local().Format(time.DateTime), rec.Elapsed(time.Now()).Round(time.Second))
	}
	if rec.CancelRequestedAt != nil {
		fmt.Fprintf(out, "Cancelled:  requested %s\n", humanize.Time(*rec.CancelRequestedAt))
	}
	if rec.LastError != "" {
		fmt.Fprintf(out, "Last error: %s\n", rec.LastError)
	}
	if len(rec.Files) > 0 {
		fmt.Fprintln(out, "Files:")
		for _, f := range rec.Files {
			fmt.Fprintf(out, "  %s\n", f)
		}
	}
	if len(rec.FailedFiles) > 0 {
		fmt.Fprintln(out, "Failed:")
		for _, f := range rec.FailedFiles {
			fmt.Fprintf(out, "  %s\n", f)
		}
	}
}

func shortJobID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
