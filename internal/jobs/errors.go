package jobs

import (
	"errors"
	"fmt"

	"vidscribe/internal/services"
)

var (
	// ErrJobRunning rejects a Start while another batch is active in this or
	// another process.
	ErrJobRunning = errors.New("a batch job is already running")
	// ErrNoActiveJob is returned by Cancel when nothing is running.
	ErrNoActiveJob = errors.New("no batch job is running")
	// ErrNoInputFiles rejects a Start without any video file.
	ErrNoInputFiles = fmt.Errorf("%w: no input files selected", services.ErrValidation)
	// ErrNoOutputFolder rejects a Start without an output folder.
	ErrNoOutputFolder = fmt.Errorf("%w: output folder is required", services.ErrValidation)
)

// Code maps orchestrator errors to stable API codes, deferring to
// services.Code for everything else.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrJobRunning):
		return "job_running"
	case errors.Is(err, ErrNoActiveJob):
		return "no_active_job"
	case errors.Is(err, ErrNoInputFiles):
		return "no_input_files"
	case errors.Is(err, ErrNoOutputFolder):
		return "no_output_folder"
	}
	return services.Code(err)
}
