// Package video wraps the ffmpeg/ffprobe tooling used to turn a video file
// into a stream of JPEG frames.
package video

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/andresmejia3/vitals/internal/types"
	"github.com/andresmejia3/vitals/internal/utils"
)

const megabyte = 1024 * 1024

var (
	JpegSOI = []byte{0xFF, 0xD8} // Start of Image
	JpegEOI = []byte{0xFF, 0xD9} // End of Image
)

// Buffer pool to reduce GC pressure while decoding
var frameBufferPool = sync.Pool{
	New: func() interface{} { return make([]byte, 0, megabyte) },
}

// ReleaseFrame hands a FrameTask buffer back to the pool once it has been decoded.
func ReleaseFrame(buf []byte) {
	frameBufferPool.Put(buf[:0])
}

// SplitJpeg is the custom splitter for bufio.Scanner.
// It locates the Start Of Image (FFD8) and End Of Image (FFD9) markers to extract full JPEG frames.
func SplitJpeg(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, JpegSOI)
	if start == -1 {
		return 0, nil, nil
	}
	end := bytes.Index(data[start:], JpegEOI)
	if end == -1 {
		return 0, nil, nil
	}
	return start + end + 2, data[start : start+end+2], nil
}

// NewFFmpegCmd creates a standard decoder pipe.
// It configures FFmpeg to output raw MJPEG frames to Stdout for ingestion.
func NewFFmpegCmd(ctx context.Context, inputPath string) *utils.SafeCommand {
	// -loglevel error keeps the stderr buffer small
	return utils.NewSafeCommand(ctx, "ffmpeg", "-hide_banner", "-loglevel", "error",
		"-i", inputPath, "-map", "0:v:0", "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "2", "-")
}

// ReadFrames splits r into JPEG frames and calls fn for each one with a
// zero-based index in stream order. The Data buffer comes from a pool; the
// consumer returns it with ReleaseFrame.
func ReadFrames(ctx context.Context, r io.Reader, fn func(types.FrameTask) error) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(SplitJpeg)

	n := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		buf := frameBufferPool.Get().([]byte)
		if cap(buf) < len(scanner.Bytes()) {
			buf = make([]byte, len(scanner.Bytes()))
		}
		buf = buf[:len(scanner.Bytes())]
		copy(buf, scanner.Bytes())

		if err := fn(types.FrameTask{Index: n, Data: buf}); err != nil {
			return n, err
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("frame scanner failed: %w", err)
	}
	return n, nil
}

// Decoder runs ffmpeg over one file. Cmd keeps the captured stderr for error reports.
type Decoder struct {
	Path string
	Cmd  *utils.SafeCommand
}

// NewDecoder prepares a decoder for path without starting ffmpeg.
func NewDecoder(ctx context.Context, path string) *Decoder {
	return &Decoder{Path: path, Cmd: NewFFmpegCmd(ctx, path)}
}

// Run starts ffmpeg and feeds every frame to fn. It returns the number of frames read.
func (d *Decoder) Run(ctx context.Context, fn func(types.FrameTask) error) (int, error) {
	out, err := d.Cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("failed to create FFmpeg stdout pipe: %w", err)
	}
	if err := d.Cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start FFmpeg: %w", err)
	}

	n, readErr := ReadFrames(ctx, out, fn)
	if readErr != nil {
		// Unblock ffmpeg so Wait can return.
		_, _ = io.Copy(io.Discard, out)
	}
	waitErr := d.Cmd.Wait()

	if readErr != nil {
		return n, readErr
	}
	if waitErr != nil {
		return n, fmt.Errorf("ffmpeg execution failed: %w", waitErr)
	}
	return n, nil
}

// GenerateVideoID creates a deterministic hash for the video file
// based on its path, size, and modification time.
func GenerateVideoID(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	input := fmt.Sprintf("%s-%d-%d", path, info.Size(), info.ModTime().UnixNano())
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:]), nil
}
