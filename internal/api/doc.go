// Package api serves vidscribe over HTTP for a desktop shell or web UI.
//
// # Routes
//
// POST /api/batch starts a transcription job (409 with code job_running when
// one is already active; ?wait=true blocks until it ends). POST
// /api/batch/cancel requests cooperative cancellation. GET /api/batch returns
// the active job. GET /api/jobs and /api/jobs/:id read job history.
//
// GET /api/models and /api/models/:model report cached transcription models;
// POST /api/models/:model/download runs the download worker.
//
// POST /api/search runs keyword, semantic, ask, and index queries.
//
// GET /api/events upgrades to a WebSocket that pushes every jobs.Event as a
// JSON text frame: job_started, progress, log, error, job_finished,
// transcript_added, and download_progress. Pass ?since=<seq> to replay
// buffered events first.
//
// # Design Notes
//
// DTOs use camelCase JSON tags for JavaScript consumers, except retrieval
// results, which keep the snake_case field names the search worker has always
// produced. Error responses carry {success:false, error, code}; code comes
// from jobs.Code so clients can branch without parsing messages.
package api
