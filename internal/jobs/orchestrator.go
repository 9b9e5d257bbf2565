package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"vidscribe/internal/config"
	"vidscribe/internal/inputs"
	"vidscribe/internal/logging"
	"vidscribe/internal/protocol"
	"vidscribe/internal/services"
	"vidscribe/internal/store"
	"vidscribe/internal/transcript"
	"vidscribe/internal/worker"
)

// Outcome is the caller-facing summary of a finished job.
type Outcome struct {
	Success bool         `json:"success"`
	Stopped bool         `json:"stopped"`
	Status  store.Status `json:"status"`
}

// OutcomeOf summarizes rec.
func OutcomeOf(rec store.JobRecord) Outcome {
	return Outcome{
		Success: rec.Status == store.StatusCompleted,
		Stopped: rec.Status == store.StatusStopped,
		Status:  rec.Status,
	}
}

type job struct {
	ctx    context.Context
	record store.JobRecord
	handle *worker.Handle
	tail   *protocol.Tail
	done   chan struct{}
}

// Orchestrator runs batch jobs one at a time.
type Orchestrator struct {
	cfg         *config.Config
	launcher    *worker.Launcher
	history     *store.Store
	bus         *Bus
	transcripts *transcript.Store
	lock        *flock.Flock
	logger      *slog.Logger

	mu      sync.Mutex
	current *job
	last    *job
}

// New builds an Orchestrator. history may be nil to skip persistence; bus
// may be nil when nobody listens.
func New(cfg *config.Config, launcher *worker.Launcher, history *store.Store, bus *Bus, logger *slog.Logger) *Orchestrator {
	if bus == nil {
		bus = NewBus(0)
	}
	return &Orchestrator{
		cfg:         cfg,
		launcher:    launcher,
		history:     history,
		bus:         bus,
		transcripts: transcript.NewStore(logger),
		lock:        flock.New(cfg.BatchLockPath()),
		logger:      logging.NewComponentLogger(logger, "jobs"),
	}
}

// Bus returns the event bus jobs publish on.
func (o *Orchestrator) Bus() *Bus { return o.bus }

// Start validates req and launches the batch worker. The job outlives ctx;
// stop it with Cancel.
func (o *Orchestrator) Start(ctx context.Context, req Request) (store.JobRecord, error) {
	req, err := normalize(o.cfg, req)
	if err != nil {
		return store.JobRecord{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != nil {
		return store.JobRecord{}, ErrJobRunning
	}
	if err := os.MkdirAll(filepath.Dir(o.lock.Path()), 0o755); err != nil {
		return store.JobRecord{}, services.Wrap(services.ErrConfiguration, "jobs", "start", "create state directory", err)
	}
	locked, err := o.lock.TryLock()
	if err != nil {
		return store.JobRecord{}, services.Wrap(services.ErrConfiguration, "jobs", "start", "acquire batch lock", err)
	}
	if !locked {
		return store.JobRecord{}, fmt.Errorf("%w: another vidscribe process holds %s", ErrJobRunning, o.lock.Path())
	}
	release := func() {
		if err := o.lock.Unlock(); err != nil {
			o.logger.Debug("release batch lock failed", logging.Error(err))
		}
	}

	files, err := inputs.Expand(req.Files)
	if err != nil {
		release()
		return store.JobRecord{}, services.Wrap(services.ErrValidation, "jobs", "start", "expand input paths", err)
	}
	if len(files) == 0 {
		release()
		return store.JobRecord{}, ErrNoInputFiles
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		release()
		return store.JobRecord{}, services.Wrap(services.ErrConfiguration, "jobs", "start", "create output folder", err)
	}
	args, err := batchArgs(files, req)
	if err != nil {
		release()
		return store.JobRecord{}, err
	}
	o.reconcile(ctx)

	id := uuid.NewString()
	jobCtx := services.WithJobID(context.WithoutCancel(ctx), id)
	logger := logging.WithContext(jobCtx, o.logger)
	rec := store.JobRecord{
		ID:        id,
		Status:    store.StatusRunning,
		Model:     req.Model,
		Format:    req.Format,
		OutputDir: req.OutputDir,
		Files:     files,
		Total:     len(files),
		StartedAt: time.Now().UTC(),
	}

	handle, err := o.launcher.Launch(jobCtx, worker.KindBatchTranscribe, args)
	if err != nil {
		release()
		now := time.Now().UTC()
		rec.Status = store.StatusFailed
		rec.LastError = err.Error()
		rec.FinishedAt = &now
		o.save(jobCtx, rec)
		logging.ErrorWithContext(logger, "batch worker failed to start", "batch_launch_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run 'vidscribe doctor' to check the worker interpreter and scripts"),
		)
		return rec, err
	}

	j := &job{
		ctx:    jobCtx,
		record: rec,
		handle: handle,
		tail:   protocol.NewTail(20),
		done:   make(chan struct{}),
	}
	o.current = j
	o.save(jobCtx, rec)
	o.bus.Publish(Event{
		Type:    EventJobStarted,
		JobID:   id,
		Total:   rec.Total,
		Status:  store.StatusRunning,
		Message: fmt.Sprintf("processing %d file(s) with model %s", rec.Total, rec.Model),
	})
	logger.Info("batch started",
		logging.Int("files", rec.Total),
		logging.String("model", rec.Model),
		logging.String("format", rec.Format),
		logging.String("output_dir", rec.OutputDir),
		logging.Int("pid", handle.PID()),
		logging.String(logging.FieldEventType, "batch_started"),
	)
	go o.relay(j)
	return rec, nil
}

// relay is the only reader of a job's worker output.
func (o *Orchestrator) relay(j *job) {
	logger := logging.WithContext(j.ctx, o.logger)
	id := j.record.ID
	j.handle.Each(func(stream protocol.Stream, line string) {
		ev := protocol.Decode(stream, line)
		if ev.Err != nil {
			logging.WarnWithContext(logger, "malformed progress line", "progress_malformed",
				logging.String("line", line),
				logging.Error(ev.Err),
				logging.String(logging.FieldErrorHint, "the worker printed a PROGRESS line vidscribe cannot parse"),
				logging.String(logging.FieldImpact, "progress display may lag until the next valid line"),
			)
		}
		switch ev.Kind {
		case protocol.EventProgress:
			// PROGRESS i/n announces file i starting; i-1 are done.
			o.mu.Lock()
			j.record.Processed = max(ev.Current-1, 0)
			j.record.Total = ev.Total
			o.save(j.ctx, j.record)
			o.mu.Unlock()
			o.bus.Publish(Event{Type: EventProgress, JobID: id, Current: ev.Current, Total: ev.Total})
		case protocol.EventError:
			j.tail.Add(ev.Text)
			o.bus.Publish(Event{Type: EventError, JobID: id, Message: ev.Text})
		default:
			o.bus.Publish(Event{Type: EventLog, JobID: id, Message: ev.Text})
		}
	})
	status := j.handle.Wait()
	if err := j.handle.Err(); err != nil {
		logging.WarnWithContext(logger, "worker output read failed", "worker_output_error",
			logging.Error(err),
			logging.String(logging.FieldImpact, "some worker output lines were lost"),
		)
	}
	o.finish(j, status)
}

func (o *Orchestrator) finish(j *job, status worker.ExitStatus) {
	logger := logging.WithContext(j.ctx, o.logger)

	o.mu.Lock()
	rec := j.record
	o.mu.Unlock()

	switch {
	case status.StoppedByCancel || rec.CancelRequestedAt != nil:
		rec.Status = store.StatusStopped
		written, _ := o.verifyOutputs(rec)
		rec.Processed = len(written)
	case status.Success():
		rec.Status = store.StatusCompleted
		rec.Processed = rec.Total
	default:
		written, failed := o.verifyOutputs(rec)
		rec.Processed = len(written)
		rec.FailedFiles = failed
		rec.LastError = j.tail.Last()
		if rec.LastError == "" {
			rec.LastError = fmt.Sprintf("batch worker exited with code %d", status.ExitCode)
		}
		if len(written) > 0 {
			rec.Status = store.StatusCompleted
		} else {
			rec.Status = store.StatusFailed
		}
	}
	now := time.Now().UTC()
	rec.FinishedAt = &now

	o.mu.Lock()
	j.record = rec
	o.save(j.ctx, rec)
	o.mu.Unlock()

	o.bus.Publish(Event{
		Type:    EventJobFinished,
		JobID:   rec.ID,
		Current: rec.Processed,
		Total:   rec.Total,
		Status:  rec.Status,
		Message: rec.LastError,
		Data:    OutcomeOf(rec),
	})
	attrs := []logging.Attr{
		logging.String("status", string(rec.Status)),
		logging.Int("exit_code", status.ExitCode),
		logging.Int("processed", rec.Processed),
		logging.Int("total", rec.Total),
		logging.Int("failed_files", len(rec.FailedFiles)),
		logging.Duration("elapsed", rec.Elapsed(now)),
		logging.String(logging.FieldEventType, "batch_finished"),
	}
	switch rec.Status {
	case store.StatusFailed:
		logging.ErrorWithContext(logger, "batch failed", "batch_finished", append(attrs,
			logging.String("last_error", rec.LastError),
			logging.String(logging.FieldErrorHint, "inspect the worker output above"))...)
	case store.StatusCompleted:
		if len(rec.FailedFiles) > 0 {
			logging.WarnWithContext(logger, "batch completed with failed files", "batch_finished", append(attrs,
				logging.String(logging.FieldErrorHint, strings.Join(rec.FailedFiles, ", ")),
				logging.String(logging.FieldImpact, "some inputs have no transcript"))...)
			break
		}
		logger.Info("batch completed", logging.Args(attrs...)...)
	default:
		logger.Info("batch stopped", logging.Args(attrs...)...)
	}

	o.mu.Lock()
	o.current = nil
	o.last = j
	if err := o.lock.Unlock(); err != nil {
		logger.Debug("release batch lock failed", logging.Error(err))
	}
	o.mu.Unlock()
	close(j.done)
}

// verifyOutputs splits the job's inputs into those with a valid transcript
// written since the job started and those without.
func (o *Orchestrator) verifyOutputs(rec store.JobRecord) (written, failed []string) {
	since := rec.StartedAt.Truncate(time.Second)
	formats := []transcript.Format{transcript.FormatTXT, transcript.FormatMD}
	for _, file := range rec.Files {
		stem := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		ok := false
		for _, format := range formats {
			path := filepath.Join(rec.OutputDir, transcript.FileName(stem, format))
			info, err := os.Stat(path)
			if err != nil || info.ModTime().Before(since) {
				continue
			}
			if _, err := o.transcripts.Load(path); err == nil {
				ok = true
				break
			}
		}
		if ok {
			written = append(written, file)
		} else {
			failed = append(failed, file)
		}
	}
	return written, failed
}

// Cancel asks the running worker to stop after its current file. The job
// turns Stopped once the worker exits; files already written stay.
func (o *Orchestrator) Cancel(ctx context.Context) (store.JobRecord, error) {
	o.mu.Lock()
	j := o.current
	if j == nil {
		o.mu.Unlock()
		return store.JobRecord{}, ErrNoActiveJob
	}
	first := j.record.CancelRequestedAt == nil
	if first {
		now := time.Now().UTC()
		j.record.CancelRequestedAt = &now
		o.save(j.ctx, j.record)
	}
	rec := j.record
	o.mu.Unlock()

	if err := j.handle.Cancel(); err != nil {
		return rec, services.Wrap(services.ErrExternalTool, "jobs", "cancel", "signal batch worker", err)
	}
	if first {
		o.bus.Publish(Event{Type: EventLog, JobID: rec.ID, Message: "cancellation requested; the worker stops after the current file"})
		logging.WithContext(j.ctx, o.logger).Info("batch cancellation requested",
			logging.String(logging.FieldEventType, "batch_cancel_requested"),
		)
	}
	return rec, nil
}

// Current returns the running job, if any.
func (o *Orchestrator) Current() (store.JobRecord, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return store.JobRecord{}, false
	}
	return o.current.record, true
}

// Wait blocks until job id finishes and returns its final record. A job that
// is not running is looked up in history.
func (o *Orchestrator) Wait(ctx context.Context, id string) (store.JobRecord, error) {
	o.mu.Lock()
	j := o.current
	if j == nil || j.record.ID != id {
		j = o.last
	}
	o.mu.Unlock()
	if j == nil || j.record.ID != id {
		return o.Get(ctx, id)
	}
	select {
	case <-j.done:
	case <-ctx.Done():
		return store.JobRecord{}, ctx.Err()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return j.record, nil
}

// Get returns the running job or a recorded one.
func (o *Orchestrator) Get(ctx context.Context, id string) (store.JobRecord, error) {
	if rec, ok := o.Current(); ok && rec.ID == id {
		return rec, nil
	}
	o.mu.Lock()
	last := o.last
	o.mu.Unlock()
	if last != nil && last.record.ID == id {
		return last.record, nil
	}
	if o.history != nil {
		rec, err := o.history.GetJob(ctx, id)
		if err != nil {
			return store.JobRecord{}, err
		}
		if rec != nil {
			return *rec, nil
		}
	}
	return store.JobRecord{}, services.Wrap(services.ErrNotFound, "jobs", "get", fmt.Sprintf("job %s not found", id), nil)
}

// List returns recent jobs, newest first.
func (o *Orchestrator) List(ctx context.Context, limit int) ([]store.JobRecord, error) {
	if o.history == nil {
		if rec, ok := o.Current(); ok {
			return []store.JobRecord{rec}, nil
		}
		return nil, nil
	}
	return o.history.ListJobs(ctx, limit)
}

// Shutdown cancels a running job and waits for the worker to exit.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	rec, err := o.Cancel(ctx)
	if errors.Is(err, ErrNoActiveJob) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = o.Wait(ctx, rec.ID)
	return err
}

// reconcile marks jobs left running by a crashed process as failed. Callers
// hold the batch lock, so no live process owns them.
func (o *Orchestrator) reconcile(ctx context.Context) {
	if o.history == nil {
		return
	}
	n, err := o.history.ReconcileInterrupted(ctx)
	if err != nil {
		o.logger.Debug("reconcile interrupted jobs failed", logging.Error(err))
		return
	}
	if n > 0 {
		logging.WarnWithContext(o.logger, "marked interrupted jobs as failed", "jobs_reconciled",
			logging.Int64("count", n),
			logging.String(logging.FieldErrorHint, "a previous vidscribe process exited during a batch"),
			logging.String(logging.FieldImpact, "those jobs will not resume; start them again"),
		)
	}
}

func (o *Orchestrator) save(ctx context.Context, rec store.JobRecord) {
	if o.history == nil {
		return
	}
	if err := o.history.SaveJob(ctx, rec); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "job history write failed", "job_history_error",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the state directory is writable"),
			logging.String(logging.FieldImpact, "job history may be stale"),
		)
	}
}
