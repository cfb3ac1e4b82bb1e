// Package quality defines the closed set of optimization presets and the
// immutable parameter bundle attached to each.
package quality

import (
	"fmt"
	"strings"
)

// Level is a quality preset. The set is closed; unknown strings fail at
// parse time rather than surfacing as missing map keys mid-pipeline.
type Level int

const (
	High Level = iota
	Balanced
	MaxCompression
)

// Levels lists every preset in canonical order.
func Levels() []Level {
	return []Level{High, Balanced, MaxCompression}
}

func (l Level) String() string {
	switch l {
	case High:
		return "high"
	case Balanced:
		return "balanced"
	case MaxCompression:
		return "max"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Parse converts a config or CLI string to a Level.
func Parse(value string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "high":
		return High, nil
	case "balanced", "":
		return Balanced, nil
	case "max", "maximum", "max_compression":
		return MaxCompression, nil
	default:
		return Balanced, fmt.Errorf("unknown quality level %q", value)
	}
}

// QuantizationBits holds Draco per-attribute quantization.
type QuantizationBits struct {
	Position int
	Normal   int
	Color    int
	TexCoord int
}

// Settings is the immutable parameter bundle for one preset.
type Settings struct {
	// SimplifyRatio is the target triangle ratio in (0, 1].
	SimplifyRatio float64
	// TextureQuality is the encoder quality knob in (0, 100].
	TextureQuality int
	// CompressionLevel drives generic codec effort; higher compresses more.
	CompressionLevel int
	Draco            QuantizationBits
	// KTX2Mode selects the Basis Universal mode: "uastc" or "etc1s".
	KTX2Mode      string
	WebPQuality   int
	GltfpackLevel int
}

var settingsTable = map[Level]Settings{
	High: {
		SimplifyRatio:    0.9,
		TextureQuality:   90,
		CompressionLevel: 5,
		Draco:            QuantizationBits{Position: 14, Normal: 10, Color: 8, TexCoord: 12},
		KTX2Mode:         "uastc",
		WebPQuality:      90,
		GltfpackLevel:    5,
	},
	Balanced: {
		SimplifyRatio:    0.7,
		TextureQuality:   80,
		CompressionLevel: 7,
		Draco:            QuantizationBits{Position: 12, Normal: 8, Color: 8, TexCoord: 10},
		KTX2Mode:         "uastc",
		WebPQuality:      80,
		GltfpackLevel:    7,
	},
	MaxCompression: {
		SimplifyRatio:    0.5,
		TextureQuality:   60,
		CompressionLevel: 10,
		Draco:            QuantizationBits{Position: 11, Normal: 7, Color: 8, TexCoord: 8},
		KTX2Mode:         "etc1s",
		WebPQuality:      60,
		GltfpackLevel:    10,
	},
}

// SettingsFor returns the parameter bundle for a preset. Unknown levels fall
// back to Balanced so a zero or corrupted value never yields empty settings.
func SettingsFor(level Level) Settings {
	if s, ok := settingsTable[level]; ok {
		return s
	}
	return settingsTable[Balanced]
}
