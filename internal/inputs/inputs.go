// Package inputs turns the paths a user selects into the ordered list of
// video files handed to the batch worker.
package inputs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var videoExtensions = map[string]struct{}{
	".mp4": {}, ".m4v": {}, ".mov": {}, ".mkv": {}, ".avi": {}, ".webm": {},
	".wmv": {}, ".flv": {}, ".mpg": {}, ".mpeg": {}, ".ts": {}, ".mts": {},
}

// IsVideo reports whether path looks like a video file. Known extensions are
// trusted; anything else is sniffed.
func IsVideo(path string) bool {
	if _, ok := videoExtensions[strings.ToLower(filepath.Ext(path))]; ok {
		return true
	}
	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return false
	}
	for m := mime; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "video/") {
			return true
		}
	}
	return false
}

// Expand resolves each path to absolute form. Directories are walked for
// video files (hidden entries skipped, sorted by path); plain paths are
// kept as given even when they do not exist so the worker can report them as
// per-file failures. Duplicates are dropped, first occurrence wins.
func Expand(paths []string) ([]string, error) {
	seen := make(map[string]struct{}, len(paths))
	var out []string
	add := func(p string) {
		if _, dup := seen[p]; dup {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, raw := range paths {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		abs, err := filepath.Abs(raw)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", raw, err)
		}
		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			add(abs)
			continue
		}
		found, err := walk(abs)
		if err != nil {
			return nil, err
		}
		for _, p := range found {
			add(p)
		}
	}
	return out, nil
}

func walk(root string) ([]string, error) {
	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrPermission) && path != root {
				return fs.SkipDir
			}
			return err
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && IsVideo(path) {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	slices.Sort(found)
	return found, nil
}
