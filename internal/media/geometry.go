package media

import "math"

// Preset is one output resolution tier. Width and Height are the landscape
// frame; Edge is the nominal short edge the tier is named after.
type Preset struct {
	Name   string
	Width  int
	Height int
}

var Presets = []Preset{
	{Name: "720p", Width: 1280, Height: 720},
	{Name: "1080p", Width: 1920, Height: 1080},
	{Name: "2160p", Width: 3840, Height: 2160},
}

// OutputDimensions computes the encode target for a source. Landscape
// sources take the preset frame as-is. Portrait sources (height > width)
// take the preset's nominal edge as width and derive the height from the
// source aspect ratio, rounded to even because odd dimensions break 4:2:0
// chroma subsampling.
func OutputDimensions(srcWidth, srcHeight int, p Preset) (int, int) {
	if srcHeight <= srcWidth {
		return p.Width, p.Height
	}
	aspect := float64(srcWidth) / float64(srcHeight)
	w := p.Height
	h := int(math.Round(float64(w)/aspect/2)) * 2
	return w, h
}

// SelectPresets returns the tiers the source should be encoded in, skipping
// tiers above the source resolution (no upscaling). A source smaller than
// every tier still gets the lowest tier, encoded at its own dimensions.
func SelectPresets(srcWidth, srcHeight int) []Preset {
	short := srcWidth
	if srcHeight < short {
		short = srcHeight
	}

	var out []Preset
	for _, p := range Presets {
		if short >= p.Height {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		long, short := srcWidth, srcHeight
		if short > long {
			long, short = short, long
		}
		p := Presets[0]
		// Landscape convention; OutputDimensions re-derives the portrait frame.
		p.Width, p.Height = evenDown(long), evenDown(short)
		out = append(out, p)
	}
	return out
}

func evenDown(n int) int {
	if n < 2 {
		return 2
	}
	return n &^ 1
}
