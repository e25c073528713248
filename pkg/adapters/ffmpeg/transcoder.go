package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"golang.org/x/sync/errgroup"

	"github.com/user/playcore/pkg/adapters/logger"
	"github.com/user/playcore/pkg/ports"
)

// TranscoderOptions configures the ffmpeg transcoder.
type TranscoderOptions struct {
	FFmpegPath string
	Preset     string // x264 preset, default "veryfast"
	CRF        int    // default 23
	Logger     ports.Logger
}

// Transcoder implements ports.Transcoder. Sources are re-encoded into
// fragmented MP4 with H.264 video and AAC audio.
type Transcoder struct {
	opts TranscoderOptions
	log  ports.Logger
}

// NewTranscoder creates a Transcoder.
func NewTranscoder(opts TranscoderOptions) *Transcoder {
	if opts.Preset == "" {
		opts.Preset = "veryfast"
	}
	if opts.CRF <= 0 || opts.CRF > 51 {
		opts.CRF = 23
	}
	log := logger.OrNoop(opts.Logger)
	return &Transcoder{opts: opts, log: log}
}

// Available reports whether ffmpeg can be located.
func (t *Transcoder) Available() bool {
	_, err := FindFFmpeg(t.opts.FFmpegPath)
	return err == nil
}

// Transcode pipes src through ffmpeg and returns the converted source.
func (t *Transcoder) Transcode(ctx context.Context, src []byte) ([]byte, error) {
	path, err := FindFFmpeg(t.opts.FFmpegPath)
	if err != nil {
		return nil, err
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-map", "0:v:0?", "-map", "0:a:0?",
		"-c:v", "libx264",
		"-preset", t.opts.Preset,
		"-crf", fmt.Sprintf("%d", t.opts.CRF),
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-movflags", "frag_keyframe+empty_moov+default_base_moof",
		"-f", "mp4",
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	t.log.Info("Transcoding %d bytes with ffmpeg", len(src))
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	var out bytes.Buffer
	var g errgroup.Group
	g.Go(func() error {
		defer stdin.Close()
		_, err := stdin.Write(src)
		// ffmpeg may stop reading once it has what it needs
		if errors.Is(err, io.ErrClosedPipe) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(&out, stdout)
		return err
	})
	pumpErr := g.Wait()
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg transcoding failed: %w\nstderr: %s", err, stderr.String())
	}
	if pumpErr != nil {
		return nil, fmt.Errorf("ffmpeg transcoding failed: %w", pumpErr)
	}

	t.log.Info("Transcoded to %d bytes", out.Len())
	return out.Bytes(), nil
}

var _ ports.Transcoder = (*Transcoder)(nil)
