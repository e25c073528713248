package ffmpeg

import (
	"fmt"
	"sync"

	"github.com/user/playcore/pkg/adapters/logger"
	"github.com/user/playcore/pkg/pipeline"
	"github.com/user/playcore/pkg/ports"
)

// DefaultQueueSize is the number of samples a session accepts ahead of ffmpeg.
const DefaultQueueSize = 64

// Options configures the ffmpeg decode service.
type Options struct {
	FFmpegPath string // empty searches the usual locations
	QueueSize  int
	Logger     ports.Logger
}

// Service implements ports.DecodeService with one ffmpeg process per session.
type Service struct {
	opts Options
	log  ports.Logger

	once      sync.Once
	path      string
	decoders  map[string]bool
	detectErr error
}

// NewService creates a decode service. ffmpeg is located on first use.
func NewService(opts Options) *Service {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	log := logger.OrNoop(opts.Logger)
	return &Service{opts: opts, log: log}
}

func (s *Service) detect() error {
	s.once.Do(func() {
		path, err := FindFFmpeg(s.opts.FFmpegPath)
		if err != nil {
			s.detectErr = err
			return
		}
		decoders, err := listDecoders(path)
		if err != nil {
			s.detectErr = err
			return
		}
		s.path, s.decoders = path, decoders
		s.log.Debug("Found ffmpeg at %s with %d decoders", path, len(decoders))
	})
	return s.detectErr
}

// Available reports whether ffmpeg could be located.
func (s *Service) Available() bool {
	return s.detect() == nil
}

// Supports reports whether ffmpeg has a decoder for the codec and the
// configuration record can be parsed.
func (s *Service) Supports(codec string, config []byte) bool {
	if s.detect() != nil {
		return false
	}
	if _, ok := pickDecoder(codec, false, s.decoders); !ok {
		return false
	}
	_, err := newFramer(pipeline.Track{Codec: codec, Config: config})
	return err == nil
}

// Open starts a decode session for the track.
func (s *Service) Open(track pipeline.Track, opts pipeline.DecoderOptions, out ports.DecodeOutput) (ports.DecodeSession, error) {
	if err := s.detect(); err != nil {
		return nil, err
	}
	name, ok := pickDecoder(track.Codec, opts.HardwareAcceleration, s.decoders)
	if !ok {
		return nil, fmt.Errorf("%w: %s", pipeline.ErrUnsupportedCodec, track.Codec)
	}
	fr, err := newFramer(track)
	if err != nil {
		return nil, err
	}
	s.log.Debug("Opening %s with decoder %s", track, name)

	sess := &Session{
		ffmpegPath: s.path,
		decoder:    name,
		threads:    opts.Threads,
		track:      track,
		framer:     fr,
		out:        out,
		queueSize:  s.opts.QueueSize,
		log:        s.log,
	}
	if err := sess.start(); err != nil {
		return nil, err
	}
	return sess, nil
}

var _ ports.DecodeService = (*Service)(nil)
