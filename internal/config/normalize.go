package config

import "strings"

func (c *Config) normalize() error {
	fields := []*string{
		&c.Paths.UploadDir,
		&c.Paths.OutputDir,
		&c.Paths.StagingDir,
		&c.Paths.LogDir,
	}
	for _, field := range fields {
		expanded, err := expandPath(strings.TrimSpace(*field))
		if err != nil {
			return err
		}
		*field = expanded
	}

	c.Tools.Gltfpack = strings.TrimSpace(c.Tools.Gltfpack)
	c.Tools.GltfTransform = strings.TrimSpace(c.Tools.GltfTransform)
	c.Tools.Toktx = strings.TrimSpace(c.Tools.Toktx)

	passthrough := make([]string, 0, len(c.Tools.EnvPassthrough))
	for _, name := range c.Tools.EnvPassthrough {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			passthrough = append(passthrough, trimmed)
		}
	}
	c.Tools.EnvPassthrough = passthrough

	c.Optimizer.Quality = strings.ToLower(strings.TrimSpace(c.Optimizer.Quality))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}
