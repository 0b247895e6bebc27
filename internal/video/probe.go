package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

// ErrNoVideoStream is returned when ffprobe finds no video stream in the file.
var ErrNoVideoStream = errors.New("no video stream found")

type ffprobeOutput struct {
	Streams []struct {
		RFrameRate    string `json:"r_frame_rate"`
		AvgFrameRate  string `json:"avg_frame_rate"`
		NbFrames      string `json:"nb_frames"`
		NbReadPackets string `json:"nb_read_packets"`
	} `json:"streams"`
}

func runProbe(ctx context.Context, args ...string) (*ffprobeOutput, error) {
	out, err := exec.CommandContext(ctx, "ffprobe", args...).Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}
	var res ffprobeOutput
	if err := json.Unmarshal(out, &res); err != nil {
		return nil, fmt.Errorf("ffprobe JSON parse error: %w", err)
	}
	if len(res.Streams) == 0 {
		return nil, ErrNoVideoStream
	}
	return &res, nil
}

// ParseFrameRate parses ffprobe rates such as "30000/1001", "25/1" or "29.97".
// "0/0" and other non-positive rates are errors.
func ParseFrameRate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	num, den, isRatio := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frame rate %q: %w", s, err)
	}
	if isRatio {
		d, err := strconv.ParseFloat(den, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid frame rate %q: %w", s, err)
		}
		if d == 0 {
			return 0, fmt.Errorf("invalid frame rate %q: zero denominator", s)
		}
		n /= d
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid frame rate %q: not positive", s)
	}
	return n, nil
}

// ProbeFPS asks ffprobe for the frame rate of the first video stream,
// preferring r_frame_rate over avg_frame_rate.
func ProbeFPS(ctx context.Context, path string) (float64, error) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return 0, err
	}
	res, err := runProbe(ctx, "-v", "error", "-select_streams", "v:0",
		"-show_entries", "stream=r_frame_rate,avg_frame_rate", "-of", "json", path)
	if err != nil {
		return 0, err
	}
	st := res.Streams[0]
	fps, err := ParseFrameRate(st.RFrameRate)
	if err != nil {
		if avg, avgErr := ParseFrameRate(st.AvgFrameRate); avgErr == nil {
			return avg, nil
		}
		return 0, err
	}
	return fps, nil
}

// GetTotalFrames uses ffprobe to count frames for the progress bar.
// It returns 0 if the count fails, allowing callers to fall back to a spinner.
func GetTotalFrames(ctx context.Context, path string, logger *slog.Logger) int {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		logger.Warn("ffprobe not found, progress will be indeterminate")
		return 0
	}

	// Fast path: container metadata. Instant, but may be "N/A".
	if res, err := runProbe(ctx, "-v", "error", "-select_streams", "v:0",
		"-show_entries", "stream=nb_frames", "-of", "json", path); err == nil {
		if count, err := strconv.Atoi(res.Streams[0].NbFrames); err == nil && count > 0 {
			return count
		}
	}

	// Slow path: count packets.
	logger.Debug("frame count metadata missing, counting packets", "path", path)
	res, err := runProbe(ctx, "-v", "error", "-select_streams", "v:0", "-count_packets",
		"-show_entries", "stream=nb_read_packets", "-of", "json", path)
	if err != nil {
		logger.Debug("frame count failed", "path", path, "error", err)
		return 0
	}
	count, err := strconv.Atoi(res.Streams[0].NbReadPackets)
	if err != nil {
		logger.Debug("frame count is not an integer", "path", path, "error", err)
		return 0
	}
	return count
}
