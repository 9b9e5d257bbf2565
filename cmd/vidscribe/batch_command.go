package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"vidscribe/internal/jobs"
	"vidscribe/internal/store"
)

// batchSummary is the machine-readable line printed when a batch ends.
type batchSummary struct {
	jobs.Outcome
	JobID       string   `json:"jobId"`
	Processed   int      `json:"processed"`
	Total       int      `json:"total"`
	FailedFiles []string `json:"failedFiles,omitempty"`
	OutputDir   string   `json:"outputFolder"`
}

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var (
		outputDir   string
		model       string
		format      string
		bitrate     string
		llmProvider string
		llmTemplate string
		llmModel    string
		quiet       bool
	)

	cmd := &cobra.Command{
		Use:   "batch <files or folders...>",
		Short: "Transcribe video files into the output folder",
		Long: `Convert each video to audio and write a speaker-labeled transcript for it.

Folders are expanded to the video files they contain. Progress goes to
stderr; the final {"success","stopped"} summary goes to stdout. Press Ctrl-C
once to stop after the current file, twice to stop waiting.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(runtimeOptions{store: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			folder, err := outputFolder(rt.cfg, outputDir)
			if err != nil {
				return err
			}
			req := jobs.Request{
				Files:      args,
				OutputDir:  folder,
				Model:      model,
				Format:     format,
				MP3Bitrate: bitrate,
			}
			if provider := strings.TrimSpace(llmProvider); provider != "" {
				req.LLM = &jobs.LLMOptions{
					Enabled:  true,
					Provider: provider,
					Template: llmTemplate,
					Model:    llmModel,
				}
			}

			bus := jobs.NewBus(0)
			events, unsubscribe := bus.Subscribe(512)
			defer unsubscribe()

			signals := make(chan os.Signal, 2)
			signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(signals)

			return runBatch(cmd, rt.orchestrator(bus), req, events, signals, quiet)
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output folder for audio and transcripts (default paths.output_dir)")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Transcription model: tiny, base, small, medium, large")
	cmd.Flags().StringVarP(&format, "format", "f", "", "Transcript format: txt, md, both")
	cmd.Flags().StringVar(&bitrate, "mp3-bitrate", "", "MP3 bitrate for extracted audio, e.g. 128k")
	cmd.Flags().StringVar(&llmProvider, "llm-provider", "", "Post-process transcripts with this provider inside the worker")
	cmd.Flags().StringVar(&llmTemplate, "llm-template", "", "Post-processing template (see 'vidscribe templates')")
	cmd.Flags().StringVar(&llmModel, "llm-model", "", "Model name for the post-processing provider")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print the final summary")
	return cmd
}

// runBatch starts req and renders its events until the job ends. The first
// signal requests cooperative cancellation; the second stops waiting.
func runBatch(cmd *cobra.Command, orch *jobs.Orchestrator, req jobs.Request, events <-chan jobs.Event, signals <-chan os.Signal, quiet bool) error {
	runCtx := cmd.Context()
	if runCtx == nil {
		runCtx = context.Background()
	}
	cursor := orch.Bus().CursorAt(orch.Bus().Latest())
	rec, err := orch.Start(runCtx, req)
	if err != nil {
		return err
	}

	stderr := cmd.ErrOrStderr()
	renderer := newProgressRenderer(stderr, shouldColorize(stderr), quiet)

	waitCtx, abort := context.WithCancel(runCtx)
	defer abort()
	var (
		final   store.JobRecord
		waitErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		final, waitErr = orch.Wait(waitCtx, rec.ID)
	}()

	interrupts := 0
	for finished := false; !finished; {
		select {
		case ev := <-events:
			for _, next := range cursor.Next(ev) {
				renderer.render(next)
			}
		case <-signals:
			interrupts++
			if interrupts == 1 {
				if _, err := orch.Cancel(runCtx); err != nil && !errors.Is(err, jobs.ErrNoActiveJob) {
					fmt.Fprintf(stderr, "cancel failed: %v\n", err)
				}
				fmt.Fprintln(stderr, "Stopping after the current file. Press Ctrl-C again to stop waiting.")
				continue
			}
			abort()
		case <-done:
			finished = true
		}
	}
	for drained := false; !drained; {
		select {
		case ev := <-events:
			renderer.render(ev)
		default:
			drained = true
		}
	}

	if waitErr != nil {
		if errors.Is(waitErr, context.Canceled) {
			return fmt.Errorf("stopped waiting for job %s; the worker is still finishing its current file", rec.ID)
		}
		return waitErr
	}

	summary := batchSummary{
		Outcome:     jobs.OutcomeOf(final),
		JobID:       final.ID,
		Processed:   final.Processed,
		Total:       final.Total,
		FailedFiles: final.FailedFiles,
		OutputDir:   final.OutputDir,
	}
	renderer.finish(final)
	if err := writeJSON(cmd, summary); err != nil {
		return err
	}
	if final.Status == store.StatusFailed {
		msg := final.LastError
		if msg == "" {
			msg = "see the log for details"
		}
		return fmt.Errorf("batch failed: %s", msg)
	}
	return nil
}

// progressRenderer prints job events as plain lines on stderr.
type progressRenderer struct {
	out      io.Writer
	colorize bool
	quiet    bool
	started  time.Time
}

func newProgressRenderer(out io.Writer, colorize, quiet bool) *progressRenderer {
	return &progressRenderer{out: out, colorize: colorize, quiet: quiet, started: time.Now()}
}

func (r *progressRenderer) render(ev jobs.Event) {
	if r.quiet {
		return
	}
	switch ev.Type {
	case jobs.EventJobStarted:
		fmt.Fprintln(r.out, r.paint(statusInfo, "Started: "+ev.Message))
	case jobs.EventProgress:
		fmt.Fprintf(r.out, "[%d/%d] %s\n", ev.Current, ev.Total, progressBar(ev.Current, ev.Total, 24))
	case jobs.EventLog:
		if msg := strings.TrimSpace(ev.Message); msg != "" {
			fmt.Fprintln(r.out, "  "+msg)
		}
	case jobs.EventError:
		if msg := strings.TrimSpace(ev.Message); msg != "" {
			fmt.Fprintln(r.out, r.paint(statusWarn, "  "+msg))
		}
	case jobs.EventJobFinished:
		// finish prints the summary from the final record.
	}
}

func (r *progressRenderer) finish(rec store.JobRecord) {
	if r.quiet {
		return
	}
	elapsed := time.Since(r.started).Round(100 * time.Millisecond)
	kind := statusOK
	switch rec.Status {
	case store.StatusStopped:
		kind = statusWarn
	case store.StatusFailed:
		kind = statusError
	}
	line := fmt.Sprintf("Batch %s: %d/%d file(s) processed in %s", rec.Status, rec.Processed, rec.Total, elapsed)
	fmt.Fprintln(r.out, r.paint(kind, line))
	for _, failed := range rec.FailedFiles {
		fmt.Fprintln(r.out, r.paint(statusWarn, "  failed: "+failed))
	}
}

func (r *progressRenderer) paint(kind statusKind, line string) string {
	if !r.colorize {
		return line
	}
	return statusKindColor(kind) + line + ansiReset
}

func progressBar(current, total, width int) string {
	if total <= 0 || width <= 0 {
		return ""
	}
	filled := min(current*width/total, width)
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}
