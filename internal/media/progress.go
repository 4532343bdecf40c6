package media

import (
	"regexp"
	"strconv"
	"time"
)

// ffmpeg reports encode position on stderr as "time=HH:MM:SS.cc".
var progressTimeRe = regexp.MustCompile(`time=(\d+):(\d{2}):(\d{2})(?:\.(\d+))?`)

// ParseProgressTime extracts the elapsed encode position from one ffmpeg
// stderr line. Returns false when the line carries no time marker.
func ParseProgressTime(line string) (time.Duration, bool) {
	m := progressTimeRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}

	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])

	d := time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second
	if m[4] != "" {
		frac, _ := strconv.ParseFloat("0."+m[4], 64)
		d += time.Duration(frac * float64(time.Second))
	}
	return d, true
}

// ProgressFraction converts an elapsed encode position into a 0..1 fraction
// of the source duration, clamped so trailing muxer output never reports
// past the end.
func ProgressFraction(elapsed time.Duration, duration float64) float64 {
	if duration <= 0 {
		return 0
	}
	frac := elapsed.Seconds() / duration
	if frac > 1 {
		frac = 1
	}
	if frac < 0 {
		frac = 0
	}
	return frac
}
