package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrDecode marks any failure of the external codec collaborator: missing
// binary, unsupported container, corrupt stream, or timeout.
var ErrDecode = errors.New("audio decode failed")

// Transcoder shells out to ffmpeg to convert arbitrary uploaded containers
// (webm, ogg, m4a, ...) into mono PCM WAV at a fixed sample rate. Every call
// is bounded by Timeout so a wedged codec cannot hang a request.
type Transcoder struct {
	FFmpegPath string // empty means look up "ffmpeg" on PATH
	SampleRate int
	Timeout    time.Duration
}

// Transcode writes a canonical WAV next to the caller-chosen dst path and
// returns it. Errors wrap ErrDecode.
func (t *Transcoder) Transcode(ctx context.Context, src, dst string) error {
	bin := t.FFmpegPath
	if bin == "" {
		resolved, err := exec.LookPath("ffmpeg")
		if err != nil {
			return fmt.Errorf("%w: ffmpeg not on PATH: %v", ErrDecode, err)
		}
		bin = resolved
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin,
		"-y",
		"-i", src,
		"-ar", strconv.Itoa(t.SampleRate),
		"-ac", "1",
		dst,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: ffmpeg timed out after %s", ErrDecode, timeout)
		}
		return fmt.Errorf("%w: ffmpeg: %v: %s", ErrDecode, err, lastLine(stderr.String()))
	}
	return nil
}

// lastLine keeps error strings short; ffmpeg prints its banner on stderr.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
