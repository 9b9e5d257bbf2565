package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// CheckFFmpegForWorker reports the FFmpeg binary the worker will execute.
//
// The transcription worker extracts audio with ffmpeg. Inside a virtualenv
// the bundled binary next to the interpreter wins over PATH, so the lookup
// mirrors that order.
func CheckFFmpegForWorker(interpreter string) Status {
	return checkSidecar("FFmpeg", "ffmpeg", "Used by the worker to extract audio", interpreter, false)
}

// CheckFFprobeForWorker reports the ffprobe binary used for duration probes.
func CheckFFprobeForWorker(interpreter string) Status {
	return checkSidecar("FFprobe", "ffprobe", "Used by the worker to read media durations", interpreter, true)
}

func checkSidecar(name, binary, description, interpreter string, optional bool) Status {
	result := Status{
		Name:        name,
		Description: description,
		Optional:    optional,
	}

	interpreter = strings.TrimSpace(interpreter)
	if interpreter != "" {
		if resolved, err := exec.LookPath(interpreter); err == nil {
			if candidate, ok := sidecarCandidate(resolved, binary); ok {
				if info, statErr := os.Stat(candidate); statErr == nil && isExecutable(info) {
					result.Command = candidate
					result.Available = true
					return result
				}
			}
		}
	}

	if path, err := exec.LookPath(binary); err == nil {
		result.Command = path
		result.Available = true
		return result
	}

	result.Command = binary
	result.Available = false
	result.Detail = fmt.Sprintf("binary %q not found", binary)
	return result
}

func sidecarCandidate(interpreterPath, binary string) (string, bool) {
	if interpreterPath == "" {
		return "", false
	}
	dir := filepath.Dir(interpreterPath)
	if runtime.GOOS == "windows" {
		binary += ".exe"
	}
	return filepath.Join(dir, binary), true
}

func isExecutable(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
