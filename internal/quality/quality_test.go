package quality

import "testing"

func TestParse(t *testing.T) {
	cases := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{"high", High, false},
		{"Balanced", Balanced, false},
		{"", Balanced, false},
		{"max", MaxCompression, false},
		{"maximum", MaxCompression, false},
		{"max_compression", MaxCompression, false},
		{"ultra", Balanced, true},
	}
	for _, tc := range cases {
		got, err := Parse(tc.input)
		if tc.wantErr != (err != nil) {
			t.Fatalf("Parse(%q) error = %v, wantErr %t", tc.input, err, tc.wantErr)
		}
		if got != tc.want {
			t.Fatalf("Parse(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

// Moving High -> Balanced -> MaxCompression must strictly reduce geometry and
// texture fidelity while strictly raising compression effort.
func TestSettingsMonotonicity(t *testing.T) {
	levels := Levels()
	for i := 1; i < len(levels); i++ {
		prev := SettingsFor(levels[i-1])
		cur := SettingsFor(levels[i])
		if !(cur.SimplifyRatio < prev.SimplifyRatio) {
			t.Fatalf("simplify ratio must strictly decrease: %v -> %v", prev.SimplifyRatio, cur.SimplifyRatio)
		}
		if !(cur.TextureQuality < prev.TextureQuality) {
			t.Fatalf("texture quality must strictly decrease: %d -> %d", prev.TextureQuality, cur.TextureQuality)
		}
		if !(cur.CompressionLevel > prev.CompressionLevel) {
			t.Fatalf("compression level must strictly increase: %d -> %d", prev.CompressionLevel, cur.CompressionLevel)
		}
	}
}

func TestSettingsRanges(t *testing.T) {
	for _, level := range Levels() {
		s := SettingsFor(level)
		if s.SimplifyRatio <= 0 || s.SimplifyRatio > 1 {
			t.Fatalf("%v simplify ratio out of (0,1]: %v", level, s.SimplifyRatio)
		}
		if s.TextureQuality <= 0 || s.TextureQuality > 100 {
			t.Fatalf("%v texture quality out of (0,100]: %d", level, s.TextureQuality)
		}
		if s.WebPQuality <= 0 || s.WebPQuality > 100 {
			t.Fatalf("%v webp quality out of (0,100]: %d", level, s.WebPQuality)
		}
		if s.KTX2Mode != "uastc" && s.KTX2Mode != "etc1s" {
			t.Fatalf("%v unknown ktx2 mode %q", level, s.KTX2Mode)
		}
	}
}

func TestSettingsForUnknownFallsBack(t *testing.T) {
	if SettingsFor(Level(99)) != SettingsFor(Balanced) {
		t.Fatal("unknown level must fall back to balanced settings")
	}
}
