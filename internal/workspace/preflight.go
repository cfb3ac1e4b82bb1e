package workspace

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"glbopt/internal/config"
	"glbopt/internal/services"
)

// freeSpaceFactor is how many multiples of the input size must be free in
// staging before a run starts. Intermediate artifacts from racing
// compression methods can briefly exceed the input size.
const freeSpaceFactor = 2

var statfs = unix.Statfs

// Preflight verifies the configured roots are usable and that staging has
// room for the run's intermediate artifacts.
func Preflight(cfg *config.Config, inputSizeBytes int64) error {
	checks := []struct {
		name string
		path string
		mode uint32
	}{
		{"upload directory", cfg.Paths.UploadDir, unix.R_OK | unix.X_OK},
		{"output directory", cfg.Paths.OutputDir, unix.R_OK | unix.W_OK | unix.X_OK},
		{"staging directory", cfg.Paths.StagingDir, unix.R_OK | unix.W_OK | unix.X_OK},
	}
	for _, check := range checks {
		info, err := os.Stat(check.path)
		if err != nil {
			return services.Wrap(services.ErrConfiguration, "workspace", "preflight",
				fmt.Sprintf("%s is not accessible", check.name), err)
		}
		if !info.IsDir() {
			return services.Wrap(services.ErrConfiguration, "workspace", "preflight",
				fmt.Sprintf("%s is not a directory", check.name), nil)
		}
		if err := unix.Access(check.path, check.mode); err != nil {
			return services.Wrap(services.ErrConfiguration, "workspace", "preflight",
				fmt.Sprintf("%s has insufficient permissions", check.name), err)
		}
	}

	if inputSizeBytes > 0 {
		var stat unix.Statfs_t
		if err := statfs(cfg.Paths.StagingDir, &stat); err != nil {
			return services.Wrap(services.ErrIO, "workspace", "preflight", "query staging free space", err)
		}
		free := int64(stat.Bavail) * int64(stat.Bsize)
		need := inputSizeBytes * freeSpaceFactor
		if free < need {
			return services.Wrap(services.ErrIO, "workspace", "preflight",
				fmt.Sprintf("staging has %d bytes free, need %d", free, need), nil)
		}
	}
	return nil
}
