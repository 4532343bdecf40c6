package media

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const defaultCRF = 23

// Encoder drives ffmpeg. Cores decides the x264 preset and thread cap so a
// transcode never starves the host.
type Encoder struct {
	Path  string // ffmpeg binary, defaults to "ffmpeg"
	Cores int
}

func (e *Encoder) bin() string {
	if e.Path != "" {
		return e.Path
	}
	return "ffmpeg"
}

// X264Preset trades quality for speed on small hosts.
func X264Preset(cores int) string {
	switch {
	case cores <= 4:
		return "veryfast"
	case cores <= 8:
		return "faster"
	default:
		return "medium"
	}
}

// ThreadCount caps encoder threads at 75% of cores, ceiling 12.
func ThreadCount(cores int) int {
	n := (cores*3 + 3) / 4
	if n > 12 {
		n = 12
	}
	if n < 1 {
		n = 1
	}
	return n
}

// EncodeRequest is one rendition encode.
type EncodeRequest struct {
	InputPath  string
	OutputPath string
	Width      int
	Height     int
	Watermark  *Watermark
	HasAudio   bool
	Duration   float64 // source seconds, drives progress reporting
}

// Encode runs one rendition, streaming progress fractions (0..1) to
// onProgress as ffmpeg reports encode position on stderr.
func (e *Encoder) Encode(ctx context.Context, req *EncodeRequest, onProgress func(float64)) error {
	graph, multiInput := BuildFilterGraph(req.Width, req.Height, req.Watermark)

	args := []string{"-i", req.InputPath}
	if multiInput {
		args = append(args, "-filter_complex", graph, "-map", "[vout]")
		if req.HasAudio {
			args = append(args, "-map", "0:a")
		}
	} else {
		args = append(args, "-vf", graph)
	}

	args = append(args,
		"-c:v", "libx264",
		"-preset", X264Preset(e.Cores),
		"-crf", strconv.Itoa(defaultCRF),
		"-threads", strconv.Itoa(ThreadCount(e.Cores)),
	)
	if req.HasAudio {
		args = append(args, "-c:a", "aac", "-b:a", "128k")
	} else {
		args = append(args, "-an")
	}
	args = append(args, "-movflags", "+faststart", "-y", req.OutputPath)

	cmd := exec.CommandContext(ctx, e.bin(), args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("%w: stderr pipe: %v", ErrEncodeFailed, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start ffmpeg: %v", ErrEncodeFailed, err)
	}

	// ffmpeg writes progress lines with \r; keep the tail for diagnostics.
	var tail []string
	scanner := bufio.NewScanner(stderr)
	scanner.Split(scanCRLines)
	for scanner.Scan() {
		line := scanner.Text()
		if elapsed, ok := ParseProgressTime(line); ok {
			if onProgress != nil {
				onProgress(ProgressFraction(elapsed, req.Duration))
			}
			continue
		}
		tail = append(tail, line)
		if len(tail) > 20 {
			tail = tail[1:]
		}
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("%w: %v: %s", ErrEncodeFailed, err, strings.Join(tail, "\n"))
	}
	if onProgress != nil {
		onProgress(1)
	}
	return nil
}

// ExtractPoster grabs one frame at the given offset, letterboxed to a fixed
// 1280x720 frame for consistent grid display.
func (e *Encoder) ExtractPoster(ctx context.Context, inputPath, outputPath string, offset float64) error {
	args := []string{
		"-ss", fmt.Sprintf("%.2f", offset),
		"-i", inputPath,
		"-vframes", "1",
		"-vf", "scale=1280:720:force_original_aspect_ratio=decrease,pad=1280:720:(ow-iw)/2:(oh-ih)/2",
		"-q:v", "2",
		"-y",
		outputPath,
	}

	output, err := exec.CommandContext(ctx, e.bin(), args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: poster: %v: %s", ErrEncodeFailed, err, string(output))
	}
	return nil
}

// PosterOffset picks the poster frame position: 10% into the clip, clamped
// so short clips never seek past their end.
func PosterOffset(duration float64) float64 {
	offset := duration * 0.10
	if offset < 0.5 {
		offset = 0.5
	}
	if offset > 10 {
		offset = 10
	}
	return offset
}

// scanCRLines splits on \n or \r since ffmpeg rewrites its progress line
// with carriage returns.
func scanCRLines(data []byte, atEOF bool) (int, []byte, error) {
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}
