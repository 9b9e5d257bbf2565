// Package store persists batch job history and cached segment embeddings in
// SQLite.
//
// Transcripts themselves live only in the output folder; the database is an
// auxiliary index that can be deleted at any time. The schema is versioned and
// a mismatch asks the operator to remove the file rather than migrating.
package store
