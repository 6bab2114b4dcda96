package videoqc

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
)

// FFProbe measures clips with the ffprobe binary. Motion and clarity are
// approximated from stream metadata; a dedicated pixel-level probe can
// replace this behind the MetricsProbe interface.
type FFProbe struct {
	// Binary overrides the ffprobe executable name.
	Binary string
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
	} `json:"streams"`
}

// Probe implements MetricsProbe.
func (p *FFProbe) Probe(ctx context.Context, path string) (*VideoMetrics, error) {
	binary := p.Binary
	if binary == "" {
		binary = "ffprobe"
	}
	out, err := exec.CommandContext(ctx, binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path).Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	var probed ffprobeOutput
	if err := json.Unmarshal(out, &probed); err != nil {
		return nil, fmt.Errorf("ffprobe output for %s: %w", path, err)
	}

	duration, err := strconv.ParseFloat(probed.Format.Duration, 64)
	if err != nil {
		return nil, fmt.Errorf("ffprobe duration %q for %s: %w", probed.Format.Duration, path, err)
	}

	metrics := &VideoMetrics{DurationSeconds: duration}
	for _, stream := range probed.Streams {
		if stream.CodecType != "video" {
			continue
		}
		metrics.MotionQuality = frameRateQuality(stream.AvgFrameRate)
		metrics.VisualClarity = resolutionQuality(stream.Width, stream.Height)
		break
	}
	return metrics, nil
}

// frameRateQuality maps a frame rate fraction like "24/1" to 0-1. Below 12fps
// motion looks broken; 24fps and up is full quality.
func frameRateQuality(avgFrameRate string) float64 {
	var num, den float64
	if _, err := fmt.Sscanf(avgFrameRate, "%f/%f", &num, &den); err != nil || den == 0 {
		return 0.5
	}
	fps := num / den
	switch {
	case fps >= 24:
		return 1.0
	case fps < 12:
		return 0.4
	default:
		return 0.4 + 0.6*(fps-12)/12
	}
}

// resolutionQuality maps pixel dimensions to 0-1 with 720p as full quality.
func resolutionQuality(width, height int) float64 {
	pixels := float64(width * height)
	full := 1280.0 * 720.0
	if pixels >= full {
		return 1.0
	}
	if pixels <= 0 {
		return 0.0
	}
	return 0.4 + 0.6*pixels/full
}

// FFmpegSampler extracts evenly spaced JPEG frames with the ffmpeg binary.
type FFmpegSampler struct {
	Binary string
}

// SampleFrames implements FrameSampler.
func (s *FFmpegSampler) SampleFrames(ctx context.Context, path string, count int) ([][]byte, error) {
	if count < 1 {
		count = 1
	}
	binary := s.Binary
	if binary == "" {
		binary = "ffmpeg"
	}

	dir, err := os.MkdirTemp("", "frames-*")
	if err != nil {
		return nil, fmt.Errorf("frame temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	// thumbnail-spread the requested frame count across the clip
	pattern := filepath.Join(dir, "frame-%03d.jpg")
	cmd := exec.CommandContext(ctx, binary,
		"-i", path,
		"-vf", "thumbnail,scale=640:-1,fps=1",
		"-frames:v", strconv.Itoa(count),
		"-q:v", "3",
		pattern)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("ffmpeg frames from %s: %w (%s)", path, err, firstLine(out))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	frames := make([][]byte, 0, len(entries))
	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read frame %s: %w", entry.Name(), err)
		}
		frames = append(frames, data)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames extracted from %s", path)
	}
	return frames, nil
}

func firstLine(out []byte) string {
	for i, b := range out {
		if b == '\n' {
			return string(out[:i])
		}
	}
	return string(out)
}
