package deps

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Requirement defines an external dependency vidscribe relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// CheckFiles reports whether each requirement's Command names an existing
// regular file. Worker scripts are checked this way since they are run
// through the interpreter and need no exec bit.
func CheckFiles(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		path := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     path,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		info, err := os.Stat(path)
		switch {
		case path == "":
			status.Detail = "path not configured"
		case err != nil:
			status.Detail = fmt.Sprintf("%s not found", path)
		case info.IsDir():
			status.Detail = fmt.Sprintf("%s is a directory", path)
		default:
			status.Available = true
		}
		results = append(results, status)
	}
	return results
}
