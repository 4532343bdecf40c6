package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Metadata describes a probed source file.
type Metadata struct {
	Duration   float64
	Width      int
	Height     int
	FPS        float64
	Codec      string
	HasAudio   bool
	AudioCodec string
	Container  string
	SizeBytes  int64
}

// Prober extracts source characteristics via ffprobe.
type Prober struct {
	Path string // ffprobe binary, defaults to "ffprobe"
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
		Name     string `json:"format_name"`
	} `json:"format"`
}

func (p *Prober) bin() string {
	if p.Path != "" {
		return p.Path
	}
	return "ffprobe"
}

func (p *Prober) Probe(ctx context.Context, path string) (*Metadata, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	output, err := exec.CommandContext(ctx, p.bin(), args...).Output()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProbeFailed, err)
	}

	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("%w: parse output: %v", ErrProbeFailed, err)
	}

	meta := &Metadata{
		Container: strings.Split(probe.Format.Name, ",")[0],
	}
	if probe.Format.Duration != "" {
		if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			meta.Duration = d
		}
	}
	if probe.Format.Size != "" {
		if s, err := strconv.ParseInt(probe.Format.Size, 10, 64); err == nil {
			meta.SizeBytes = s
		}
	}

	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			meta.Codec = stream.CodecName
			meta.Width = stream.Width
			meta.Height = stream.Height
			meta.FPS = parseFrameRate(stream.RFrameRate)
		case "audio":
			meta.AudioCodec = stream.CodecName
			meta.HasAudio = true
		}
	}

	if meta.Width == 0 || meta.Height == 0 {
		return nil, ErrNoVideoStream
	}
	return meta, nil
}

// parseFrameRate parses ffprobe's fraction form, e.g. "30/1" or "30000/1001".
func parseFrameRate(s string) float64 {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return 0
	}
	num, _ := strconv.ParseFloat(parts[0], 64)
	den, _ := strconv.ParseFloat(parts[1], 64)
	if den <= 0 {
		return 0
	}
	return num / den
}
