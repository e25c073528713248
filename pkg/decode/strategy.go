package decode

import (
	"context"
	"errors"
	"fmt"

	"github.com/user/playcore/pkg/pipeline"
	"github.com/user/playcore/pkg/ports"
)

// Strategy prepares the source bytes before demuxing. It runs once per
// source, never per sample.
type Strategy interface {
	// Execute returns the bytes to demux.
	Execute(ctx context.Context, src []byte) ([]byte, error)

	// Name identifies the strategy in logs and summaries.
	Name() string
}

const (
	// StrategyNative decodes the container's codecs directly.
	StrategyNative = "native"
	// StrategyTranscode re-encodes the whole source first.
	StrategyTranscode = "transcode"
)

type nativeStrategy struct{}

// NewNativeStrategy returns the strategy that leaves the source untouched.
func NewNativeStrategy() Strategy {
	return nativeStrategy{}
}

func (nativeStrategy) Name() string { return StrategyNative }

func (nativeStrategy) Execute(_ context.Context, src []byte) ([]byte, error) {
	return src, nil
}

type transcodeStrategy struct {
	transcoder ports.Transcoder
	log        ports.Logger
}

// NewTranscodeStrategy returns the strategy that converts the source with t.
func NewTranscodeStrategy(t ports.Transcoder, log ports.Logger) Strategy {
	return &transcodeStrategy{transcoder: t, log: log}
}

func (s *transcodeStrategy) Name() string { return StrategyTranscode }

func (s *transcodeStrategy) Execute(ctx context.Context, src []byte) ([]byte, error) {
	if len(src) == 0 {
		return nil, pipeline.NewFormatError("transcode", pipeline.ErrEmptyData)
	}
	s.log.Info("Transcoding source (%d bytes)", len(src))

	out, err := s.transcoder.Transcode(ctx, src)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, pipeline.NewFormatError("transcode", err)
	}
	if len(out) == 0 {
		return nil, pipeline.NewFormatError("transcode", fmt.Errorf("transcoder produced no output"))
	}

	s.log.Info("Transcode complete (%d bytes)", len(out))
	return out, nil
}
