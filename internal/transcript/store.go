package transcript

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"vidscribe/internal/logging"
	"vidscribe/internal/services"
)

// Store reads transcripts from output folders. It holds no state between
// calls; every listing rescans the folder.
type Store struct {
	logger *slog.Logger
}

// NewStore constructs a Store.
func NewStore(logger *slog.Logger) *Store {
	return &Store{logger: logging.NewComponentLogger(logger, "transcripts")}
}

// Summary counts the outcome of a folder scan.
type Summary struct {
	Folder  string   `json:"folder"`
	Indexed int      `json:"indexed"`
	Skipped int      `json:"skipped"`
	Files   []string `json:"files,omitempty"`
}

// Paths returns the transcript files in folder, one per stem, sorted by name.
// When both layouts exist for a stem the .txt file wins.
func Paths(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "transcripts", "list", fmt.Sprintf("output folder %s does not exist", folder), err)
		}
		return nil, services.Wrap(services.ErrExternalTool, "transcripts", "list", "read output folder", err)
	}
	chosen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		stem, _, ok := SplitFileName(entry.Name())
		if !ok {
			continue
		}
		if existing, seen := chosen[stem]; seen && strings.HasSuffix(existing, "."+string(FormatTXT)) {
			continue
		}
		chosen[stem] = filepath.Join(folder, entry.Name())
	}
	paths := make([]string, 0, len(chosen))
	for _, path := range chosen {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, nil
}

// Load parses a single transcript file.
func (s *Store) Load(path string) (Transcript, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Transcript{}, fmt.Errorf("stat transcript: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Transcript{}, fmt.Errorf("read transcript: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return Transcript{}, err
	}
	stem, format, ok := SplitFileName(path)
	if ok {
		t.Format = format
	}
	if t.Name == "" {
		t.Name = stem
	}
	t.Path = path
	t.ModTime = info.ModTime()
	if t.Duration == 0 {
		t.Duration = t.lastEnd()
	}
	return t, nil
}

// List lazily yields every parseable transcript in folder. Malformed or
// partially written files are skipped with a warning; a missing folder yields
// nothing and is logged once.
func (s *Store) List(ctx context.Context, folder string) iter.Seq[Transcript] {
	return func(yield func(Transcript) bool) {
		paths, err := Paths(folder)
		if err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, s.logger), "transcript folder unreadable", "transcript_folder_unreadable",
				logging.String("folder", folder),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the output folder path"),
				logging.String(logging.FieldImpact, "no transcripts available for search"),
			)
			return
		}
		for _, path := range paths {
			if ctx.Err() != nil {
				return
			}
			t, err := s.Load(path)
			if err != nil {
				s.skipped(ctx, path, err)
				continue
			}
			if !yield(t) {
				return
			}
		}
	}
}

// Summarize scans folder and counts parseable and skipped transcripts.
func (s *Store) Summarize(ctx context.Context, folder string) (Summary, error) {
	paths, err := Paths(folder)
	if err != nil {
		return Summary{Folder: folder}, err
	}
	summary := Summary{Folder: folder}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if _, err := s.Load(path); err != nil {
			s.skipped(ctx, path, err)
			summary.Skipped++
			continue
		}
		summary.Indexed++
		summary.Files = append(summary.Files, filepath.Base(path))
	}
	return summary, nil
}

func (s *Store) skipped(ctx context.Context, path string, err error) {
	logging.WarnWithContext(logging.WithContext(ctx, s.logger), "skipping transcript", "transcript_skipped",
		logging.String("path", path),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "file may still be written by the batch worker or is not a transcript"),
		logging.String(logging.FieldImpact, "file excluded from search results"),
	)
}
