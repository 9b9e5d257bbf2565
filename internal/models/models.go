// Package models describes the transcription models the worker can load and
// checks or fetches them through the verify and download workers.
package models

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"

	"vidscribe/internal/config"
)

// Info is a catalog entry.
type Info struct {
	Name        string `json:"name"`
	ApproxBytes uint64 `json:"approx_bytes"`
	Description string `json:"description"`
}

// ApproxSize renders ApproxBytes for display.
func (i Info) ApproxSize() string { return humanize.Bytes(i.ApproxBytes) }

// Catalog lists the supported models from smallest to largest.
var Catalog = []Info{
	{Name: "tiny", ApproxBytes: 39_000_000, Description: "fastest, lowest accuracy"},
	{Name: "base", ApproxBytes: 74_000_000, Description: "fast, good for clear speech"},
	{Name: "small", ApproxBytes: 244_000_000, Description: "balanced speed and accuracy"},
	{Name: "medium", ApproxBytes: 769_000_000, Description: "slow, high accuracy"},
	{Name: "large", ApproxBytes: 2_900_000_000, Description: "slowest, best accuracy"},
}

// Lookup returns the catalog entry for name.
func Lookup(name string) (Info, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	idx := slices.IndexFunc(Catalog, func(i Info) bool { return i.Name == name })
	if idx < 0 {
		return Info{}, false
	}
	return Catalog[idx], true
}

// Record describes a model's presence in the local cache.
type Record struct {
	Model     string `json:"model"`
	Exists    bool   `json:"exists"`
	Path      string `json:"path,omitempty"`
	CacheDir  string `json:"cache_dir,omitempty"`
	Size      string `json:"size,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	Message   string `json:"message,omitempty"`
}

// candidateNames lists the file names a model may be stored under, most
// specific first.
func candidateNames(model string) []string {
	return []string{
		model + ".pt",
		model + "-v1.pt",
		model + "-v2.pt",
		model + "-v3.pt",
		model + ".en.pt",
	}
}

// Scan looks for model in cacheDir without running a worker. Besides the
// exact names it accepts any "<model>*.pt" file.
func Scan(cacheDir, model string) Record {
	model = strings.ToLower(strings.TrimSpace(model))
	rec := Record{Model: model, CacheDir: cacheDir}
	if _, err := os.Stat(cacheDir); err != nil {
		rec.Message = "model cache directory not found: " + cacheDir
		return rec
	}
	found := func(path string) (Record, bool) {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return rec, false
		}
		rec.Exists = true
		rec.Path = path
		rec.SizeBytes = info.Size()
		rec.Size = humanize.IBytes(uint64(info.Size()))
		rec.Message = "model '" + model + "' is downloaded (" + filepath.Base(path) + ")"
		return rec, true
	}
	for _, name := range candidateNames(model) {
		if r, ok := found(filepath.Join(cacheDir, name)); ok {
			return r
		}
	}
	entries, err := os.ReadDir(cacheDir)
	if err == nil {
		for _, entry := range entries {
			name := entry.Name()
			if strings.HasPrefix(name, model) && strings.HasSuffix(name, ".pt") {
				if r, ok := found(filepath.Join(cacheDir, name)); ok {
					return r
				}
			}
		}
	}
	rec.Path = filepath.Join(cacheDir, model+".pt")
	rec.Message = "model '" + model + "' is not downloaded yet; run 'vidscribe model download " + model + "'"
	return rec
}

// ScanAll reports every catalog model in cacheDir.
func ScanAll(cacheDir string) []Record {
	out := make([]Record, 0, len(Catalog))
	for _, info := range Catalog {
		out = append(out, Scan(cacheDir, info.Name))
	}
	return out
}

func validate(model string) (string, error) {
	if err := config.ValidateModel(model); err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(model)), nil
}
