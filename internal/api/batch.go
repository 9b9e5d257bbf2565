package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"vidscribe/internal/jobs"
	"vidscribe/internal/logging"
	"vidscribe/internal/services"
	"vidscribe/internal/store"
	"vidscribe/internal/transcript"
)

const defaultJobListLimit = 50

func (s *Server) handleStartBatch(c *gin.Context) {
	var req jobs.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, badRequest("invalid batch request", err))
		return
	}
	if strings.TrimSpace(req.OutputDir) == "" {
		req.OutputDir = s.cfg.Paths.OutputDir
	}
	rec, err := s.jobs.Start(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	go s.watchOutputs(rec)

	wait, _ := strconv.ParseBool(c.Query("wait"))
	if !wait {
		c.JSON(http.StatusAccepted, BatchStarted{Success: true, JobID: rec.ID, Job: FromJobRecord(rec)})
		return
	}
	final, err := s.jobs.Wait(c.Request.Context(), rec.ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, BatchOutcome{Outcome: jobs.OutcomeOf(final), JobID: final.ID})
}

func (s *Server) handleCancelBatch(c *gin.Context) {
	rec, err := s.jobs.Cancel(c.Request.Context())
	if errors.Is(err, jobs.ErrNoActiveJob) {
		c.JSON(http.StatusOK, CancelResponse{Success: false, Message: "no batch is running"})
		return
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, CancelResponse{Success: true, JobID: rec.ID, Message: "cancellation requested"})
}

func (s *Server) handleActiveBatch(c *gin.Context) {
	rec, ok := s.jobs.Current()
	if !ok {
		c.JSON(http.StatusOK, ActiveBatch{Active: false})
		return
	}
	job := FromJobRecord(rec)
	c.JSON(http.StatusOK, ActiveBatch{Active: true, Job: &job})
}

func (s *Server) handleListJobs(c *gin.Context) {
	limit := defaultJobListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(c, badRequest("limit must be a positive integer", nil))
			return
		}
		limit = parsed
	}
	recs, err := s.jobs.List(c.Request.Context(), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]Job, 0, len(recs))
	for _, rec := range recs {
		out = append(out, FromJobRecord(rec))
	}
	c.JSON(http.StatusOK, JobListResponse{Jobs: out})
}

func (s *Server) handleGetJob(c *gin.Context) {
	rec, err := s.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, FromJobRecord(rec))
}

// watchOutputs publishes transcript_added events while rec runs. The watcher
// keeps going for one settle period after the job ends so the last file is
// reported.
func (s *Server) watchOutputs(rec store.JobRecord) {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	changes := make(chan transcript.Change, 8)
	watcher := transcript.NewWatcher(rec.OutputDir, nil, s.logger)
	go func() {
		if err := watcher.Run(ctx, changes); err != nil && !errors.Is(err, context.Canceled) {
			logger := logging.WithContext(services.WithJobID(ctx, rec.ID), s.logger)
			logging.WarnWithContext(logger, "transcript watcher stopped", "watcher_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that the output folder is readable"),
				logging.String(logging.FieldImpact, "transcript_added events are not sent for this job"),
			)
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.jobs.Wait(ctx, rec.ID)
	}()

	var linger <-chan time.Time
	for {
		select {
		case change := <-changes:
			s.jobs.Bus().Publish(jobs.Event{
				Type:    jobs.EventTranscriptAdded,
				JobID:   rec.ID,
				Path:    change.Path,
				Message: change.Stem,
			})
		case <-done:
			done = nil
			linger = time.After(2 * transcript.DefaultSettle)
		case <-linger:
			return
		case <-ctx.Done():
			return
		}
	}
}
