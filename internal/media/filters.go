package media

import (
	"fmt"
	"strings"
)

// Watermark describes the PNG overlaid on every rendition when branding is
// enabled for the project.
type Watermark struct {
	ImagePath string
}

const (
	centerWatermarkFrac    = 0.40 // of frame width
	cornerWatermarkFrac    = 0.15
	centerWatermarkOpacity = 0.25
	cornerWatermarkOpacity = 0.15
	cornerWatermarkMargin  = 16
)

// BuildFilterGraph composes the encode filter chain: scale to the target
// frame, then with a watermark three overlay passes of the PNG loaded via
// movie sources (one centered, two corner repeats). The second return value
// is true when the graph needs -filter_complex instead of -vf.
func BuildFilterGraph(width, height int, wm *Watermark) (string, bool) {
	scale := fmt.Sprintf("scale=%d:%d", width, height)
	if wm == nil || wm.ImagePath == "" {
		return scale, false
	}

	path := escapeMoviePath(wm.ImagePath)
	centerW := even(int(float64(width) * centerWatermarkFrac))
	cornerW := even(int(float64(width) * cornerWatermarkFrac))

	parts := []string{
		fmt.Sprintf("[0:v]%s[base]", scale),
		fmt.Sprintf("movie=%s,scale=%d:-1,format=rgba,colorchannelmixer=aa=%.2f[wmc]",
			path, centerW, centerWatermarkOpacity),
		fmt.Sprintf("movie=%s,scale=%d:-1,format=rgba,colorchannelmixer=aa=%.2f[wm1]",
			path, cornerW, cornerWatermarkOpacity),
		fmt.Sprintf("movie=%s,scale=%d:-1,format=rgba,colorchannelmixer=aa=%.2f[wm2]",
			path, cornerW, cornerWatermarkOpacity),
		"[base][wmc]overlay=(W-w)/2:(H-h)/2[v1]",
		fmt.Sprintf("[v1][wm1]overlay=%d:%d[v2]", cornerWatermarkMargin, cornerWatermarkMargin),
		fmt.Sprintf("[v2][wm2]overlay=W-w-%d:H-h-%d[vout]", cornerWatermarkMargin, cornerWatermarkMargin),
	}
	return strings.Join(parts, ";"), true
}

// escapeMoviePath escapes a filesystem path for a movie= filter source.
// Colons separate filter options, so they and quotes must be escaped.
func escapeMoviePath(path string) string {
	escaped := strings.ReplaceAll(path, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, ":", "\\:")
	escaped = strings.ReplaceAll(escaped, "'", "\\'")
	return escaped
}

func even(n int) int {
	return n &^ 1
}
