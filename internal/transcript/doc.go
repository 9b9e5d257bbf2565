// Package transcript models speaker-labeled transcripts and reads them from an
// output folder.
//
// The persisted formats are the plain-text and Markdown layouts the batch
// worker writes (<stem>_transcript.txt and <stem>_transcript.md). Render and
// Parse convert between those layouts and the Transcript type without losing
// timestamps, speakers, or text.
//
// The output folder is written by another process while it is read, so the
// Store validates every file and skips (with a warning) anything malformed or
// partially written instead of locking. Watcher reports transcripts as they
// become complete.
package transcript
