package media

import "testing"

func TestOutputDimensions(t *testing.T) {
	tests := []struct {
		name       string
		srcW, srcH int
		preset     Preset
		wantW      int
		wantH      int
	}{
		{"landscape 1080p source at 720p", 1920, 1080, Presets[0], 1280, 720},
		{"landscape 4k source at 1080p", 3840, 2160, Presets[1], 1920, 1080},
		{"square treated as landscape", 1080, 1080, Presets[0], 1280, 720},
		{"portrait 1080x1920 at 720p", 1080, 1920, Presets[0], 720, 1280},
		{"portrait 1080x1920 at 1080p", 1080, 1920, Presets[1], 1080, 1920},
		{"portrait odd aspect rounds even", 1080, 2340, Presets[0], 720, 1560},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := OutputDimensions(tt.srcW, tt.srcH, tt.preset)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("OutputDimensions(%d, %d, %s) = %dx%d, want %dx%d",
					tt.srcW, tt.srcH, tt.preset.Name, w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestOutputDimensionsAlwaysEven(t *testing.T) {
	// Odd dimensions break 4:2:0 encoding, so every derived frame must be even.
	sources := []struct{ w, h int }{
		{1080, 1921}, {1079, 1920}, {735, 1309}, {601, 1067}, {1080, 2337},
	}
	for _, src := range sources {
		for _, p := range Presets {
			w, h := OutputDimensions(src.w, src.h, p)
			if w%2 != 0 || h%2 != 0 {
				t.Errorf("OutputDimensions(%d, %d, %s) = %dx%d, odd dimension",
					src.w, src.h, p.Name, w, h)
			}
		}
	}
}

func TestSelectPresets(t *testing.T) {
	tests := []struct {
		name       string
		srcW, srcH int
		want       []string
	}{
		{"4k landscape gets all tiers", 3840, 2160, []string{"720p", "1080p", "2160p"}},
		{"1080p landscape skips 2160p", 1920, 1080, []string{"720p", "1080p"}},
		{"720p landscape gets one tier", 1280, 720, []string{"720p"}},
		{"portrait 1080x1920 short edge rules", 1080, 1920, []string{"720p", "1080p"}},
		{"just under 1080p", 1900, 1079, []string{"720p"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectPresets(tt.srcW, tt.srcH)
			if len(got) != len(tt.want) {
				t.Fatalf("SelectPresets(%d, %d) returned %d tiers, want %d",
					tt.srcW, tt.srcH, len(got), len(tt.want))
			}
			for i, p := range got {
				if p.Name != tt.want[i] {
					t.Errorf("tier %d = %s, want %s", i, p.Name, tt.want[i])
				}
			}
		})
	}
}

func TestSelectPresetsTinySource(t *testing.T) {
	got := SelectPresets(640, 479)
	if len(got) != 1 {
		t.Fatalf("expected exactly one fallback tier, got %d", len(got))
	}
	p := got[0]
	if p.Name != "720p" {
		t.Errorf("fallback tier name = %s, want 720p", p.Name)
	}
	if p.Width != 640 || p.Height != 478 {
		t.Errorf("fallback dimensions = %dx%d, want 640x478", p.Width, p.Height)
	}
	if w, h := OutputDimensions(640, 479, p); w%2 != 0 || h%2 != 0 {
		t.Errorf("fallback encode frame %dx%d has odd dimension", w, h)
	}
}

func TestSelectPresetsTinyPortrait(t *testing.T) {
	// Portrait fallback is stored landscape; OutputDimensions flips it back.
	got := SelectPresets(360, 640)
	if len(got) != 1 {
		t.Fatalf("expected exactly one fallback tier, got %d", len(got))
	}
	if got[0].Width != 640 || got[0].Height != 360 {
		t.Errorf("fallback = %dx%d, want 640x360", got[0].Width, got[0].Height)
	}
}
