// Package deps reports availability of the external tools the optimizer
// shells out to.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"glbopt/internal/config"
)

// Requirement defines an external tool glbopt relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a tool.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements builds the tool list for the given configuration.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "gltfpack",
			Command:     cfg.GltfpackBinary(),
			Description: "Geometry packing and meshopt compression",
		},
		{
			Name:        "gltf-transform",
			Command:     cfg.GltfTransformBinary(),
			Description: "Prune, weld, Draco, WebP, and resample transforms",
		},
		{
			Name:        "toktx",
			Command:     cfg.ToktxBinary(),
			Description: "KTX2 / Basis Universal texture compression",
			Optional:    true,
		},
	}
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
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}
