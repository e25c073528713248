// Package decode drives the decode services for the selected tracks and
// pushes decoded units into the picture and audio queues.
package decode

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/samber/lo"

	"github.com/user/playcore/pkg/adapters/logger"
	"github.com/user/playcore/pkg/pipeline"
	"github.com/user/playcore/pkg/ports"
	"github.com/user/playcore/pkg/queue"
)

type bridgeState int

const (
	stateUnconfigured bridgeState = iota
	stateConfigured
	stateClosed
)

// Options configures a Bridge.
type Options struct {
	Service    ports.DecodeService
	Transcoder ports.Transcoder // nil disables the fallback
	Decoder    pipeline.DecoderOptions
	Video      *queue.Queue[pipeline.DecodedUnit]
	Audio      *queue.Queue[pipeline.DecodedUnit]
	Logger     ports.Logger
}

type session struct {
	track pipeline.Track
	ds    ports.DecodeSession
}

// Bridge owns the decode sessions of one source.
//
// Decode completions run on arbitrary goroutines. Their only effect is a
// queue push, made under the bridge lock after checking the generation so
// nothing from before a Reset reaches the queues.
type Bridge struct {
	service    ports.DecodeService
	transcoder ports.Transcoder
	opts       pipeline.DecoderOptions
	video      *queue.Queue[pipeline.DecodedUnit]
	audio      *queue.Queue[pipeline.DecodedUnit]
	log        ports.Logger

	mu           sync.Mutex
	state        bridgeState
	gen          uint64
	sessions     map[uint32]*session
	inFlight     int
	dropped      int
	fallbackUsed bool
	strategy     Strategy
	cancelDrain  context.CancelFunc
}

// NewBridge creates an unconfigured Bridge.
func NewBridge(opts Options) *Bridge {
	log := logger.OrNoop(opts.Logger)
	video, audio := opts.Video, opts.Audio
	if video == nil {
		video = queue.New[pipeline.DecodedUnit]()
	}
	if audio == nil {
		audio = queue.New[pipeline.DecodedUnit]()
	}
	return &Bridge{
		service:    opts.Service,
		transcoder: opts.Transcoder,
		opts:       opts.Decoder,
		video:      video,
		audio:      audio,
		log:        log,
		sessions:   make(map[uint32]*session),
	}
}

// ProbeSupport reports whether the decode service handles the codec.
func (b *Bridge) ProbeSupport(codec string, config []byte) bool {
	if b.service == nil || codec == "" {
		return false
	}
	return b.service.Supports(codec, config)
}

// SelectStrategy picks how the source must be prepared, based on the
// default tracks of info. The transcode strategy is handed out at most once
// per bridge; a source still unsupported afterwards is a FormatError.
func (b *Bridge) SelectStrategy(info pipeline.MediaInfo) (Strategy, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateClosed {
		return nil, pipeline.ErrDisposed
	}
	if b.service == nil {
		return nil, &pipeline.InitializationError{Component: "decoder", Err: errors.New("no decode service")}
	}

	if len(info.Tracks) == 0 {
		return nil, pipeline.NewFormatError("select strategy", pipeline.ErrNoTrack)
	}
	unsupported := lo.Filter(defaultTracks(info), func(t pipeline.Track, _ int) bool {
		return !b.service.Supports(t.Codec, t.Config)
	})

	if len(unsupported) == 0 {
		b.strategy = NewNativeStrategy()
		return b.strategy, nil
	}

	codecs := lo.Map(unsupported, func(t pipeline.Track, _ int) string { return t.Codec })
	if b.fallbackUsed {
		return nil, pipeline.NewFormatError("select strategy",
			fmt.Errorf("%w after transcode: %v", pipeline.ErrUnsupportedCodec, codecs))
	}
	if b.transcoder == nil || !b.transcoder.Available() {
		return nil, pipeline.NewFormatError("select strategy",
			fmt.Errorf("%w: %v (no transcoder available)", pipeline.ErrUnsupportedCodec, codecs))
	}

	b.fallbackUsed = true
	b.log.Warn("Unsupported codecs %v, falling back to transcoding", codecs)
	b.strategy = NewTranscodeStrategy(b.transcoder, b.log)
	return b.strategy, nil
}

// Strategy returns the last selected strategy, or nil.
func (b *Bridge) Strategy() Strategy {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.strategy
}

// FallbackUsed reports whether the transcode strategy has been selected.
func (b *Bridge) FallbackUsed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fallbackUsed
}

// Configure opens a decode session for track. The bridge becomes configured
// with its first session.
func (b *Bridge) Configure(track pipeline.Track) error {
	b.mu.Lock()
	if b.state == stateClosed {
		b.mu.Unlock()
		return pipeline.ErrDisposed
	}
	if _, ok := b.sessions[track.ID]; ok {
		b.mu.Unlock()
		return fmt.Errorf("configure track %d: already configured", track.ID)
	}
	gen := b.gen
	b.mu.Unlock()

	if b.service == nil {
		return &pipeline.InitializationError{Component: "decoder", Err: errors.New("no decode service")}
	}
	if !b.service.Supports(track.Codec, track.Config) {
		return pipeline.NewFormatError("configure", fmt.Errorf("track %d: %w: %s", track.ID, pipeline.ErrUnsupportedCodec, track.Codec))
	}

	ds, err := b.service.Open(track, b.opts, func(unit pipeline.DecodedUnit, err error) {
		b.complete(gen, track, unit, err)
	})
	if err != nil {
		return &pipeline.InitializationError{Component: "decoder", Err: fmt.Errorf("track %d (%s): %w", track.ID, track.Codec, err)}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == stateClosed || b.gen != gen {
		// Reset or Close ran while the session was opening.
		_ = ds.Close()
		return fmt.Errorf("configure track %d: %w", track.ID, pipeline.ErrInvalidState)
	}
	b.sessions[track.ID] = &session{track: track, ds: ds}
	b.state = stateConfigured
	b.log.Debug("Configured %s", track)
	return nil
}

// Configured reports whether Decode may be called.
func (b *Bridge) Configured() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == stateConfigured
}

// Decode submits a sample. The result arrives later in the matching queue.
// A sample the service rejects is dropped and counted; it is not an error
// for the caller.
func (b *Bridge) Decode(sample pipeline.EncodedSample) error {
	b.mu.Lock()
	switch b.state {
	case stateClosed:
		b.mu.Unlock()
		return pipeline.ErrDisposed
	case stateUnconfigured:
		b.mu.Unlock()
		return pipeline.ErrNotConfigured
	}
	s, ok := b.sessions[sample.TrackID]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("decode track %d: %w", sample.TrackID, pipeline.ErrNoTrack)
	}
	gen := b.gen
	b.inFlight++
	b.mu.Unlock()

	// The session may complete synchronously, so the lock is not held here.
	// A rejected sample never reaches the output, so it is settled here.
	if err := s.ds.Decode(sample); err != nil {
		b.mu.Lock()
		if b.gen == gen {
			b.inFlight--
			b.dropped++
		}
		b.mu.Unlock()
		derr := &pipeline.DecodeError{TrackID: sample.TrackID, PTS: sample.PTS, Err: err}
		b.log.Warn("Dropping sample: %v", derr)
	}
	return nil
}

func (b *Bridge) complete(gen uint64, track pipeline.Track, unit pipeline.DecodedUnit, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if gen != b.gen || b.state != stateConfigured {
		unit.Release()
		return
	}
	if b.inFlight > 0 {
		b.inFlight--
	}
	if err != nil {
		b.dropped++
		var derr *pipeline.DecodeError
		if !errors.As(err, &derr) {
			err = &pipeline.DecodeError{TrackID: track.ID, Err: err}
		}
		b.log.Warn("Dropping sample: %v", err)
		return
	}

	switch {
	case unit.Picture != nil:
		b.video.Push(unit)
	case unit.Audio != nil:
		b.audio.Push(unit)
	}
}

// Flush waits until every submitted sample has been decoded.
func (b *Bridge) Flush(ctx context.Context) error {
	b.mu.Lock()
	if b.state != stateConfigured {
		b.mu.Unlock()
		return nil
	}
	sessions := lo.Values(b.sessions)
	b.mu.Unlock()

	for _, s := range sessions {
		if err := s.ds.Flush(ctx); err != nil {
			return fmt.Errorf("flush track %d: %w", s.track.ID, err)
		}
	}
	return nil
}

// Drain asks every session to release the output it still holds back and
// returns without waiting. Results arrive through the usual completion path.
// Reset and Close abandon a running drain. Decoding may continue afterwards.
func (b *Bridge) Drain() {
	b.mu.Lock()
	if b.state != stateConfigured || b.cancelDrain != nil {
		b.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.cancelDrain = cancel
	gen := b.gen
	sessions := lo.Values(b.sessions)
	b.mu.Unlock()

	go func() {
		for _, s := range sessions {
			if err := s.ds.Flush(ctx); err != nil && ctx.Err() == nil {
				b.log.Warn("Drain of track %d failed: %v", s.track.ID, err)
			}
		}
		b.mu.Lock()
		if b.gen == gen {
			b.cancelDrain = nil
		}
		b.mu.Unlock()
		cancel()
	}()
}

// Reset discards in-flight work and closes every session. Configure must be
// called again before the next Decode.
func (b *Bridge) Reset() error {
	b.mu.Lock()
	if b.state == stateClosed {
		b.mu.Unlock()
		return pipeline.ErrDisposed
	}
	sessions := b.detach()
	b.state = stateUnconfigured
	b.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.ds.Reset(); err != nil {
			errs = append(errs, fmt.Errorf("reset track %d: %w", s.track.ID, err))
		}
		if err := s.ds.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close track %d: %w", s.track.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Close releases every session. It is safe to call more than once.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.state == stateClosed {
		b.mu.Unlock()
		return nil
	}
	sessions := b.detach()
	b.state = stateClosed
	b.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.ds.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close track %d: %w", s.track.ID, err))
		}
	}
	return errors.Join(errs...)
}

// detach bumps the generation and takes the sessions. Callers hold b.mu.
func (b *Bridge) detach() []*session {
	b.gen++
	b.inFlight = 0
	if b.cancelDrain != nil {
		b.cancelDrain()
		b.cancelDrain = nil
	}
	sessions := lo.Values(b.sessions)
	b.sessions = make(map[uint32]*session)
	return sessions
}

// InFlight returns the number of submitted samples without a result yet.
func (b *Bridge) InFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inFlight
}

// Dropped returns the number of samples dropped after a decode failure.
func (b *Bridge) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// defaultTracks returns the first video and the first audio track.
func defaultTracks(info pipeline.MediaInfo) []pipeline.Track {
	var out []pipeline.Track
	for _, kind := range []pipeline.TrackKind{pipeline.KindVideo, pipeline.KindAudio} {
		if t, ok := lo.Find(info.Tracks, func(t pipeline.Track) bool { return t.Kind == kind }); ok {
			out = append(out, t)
		}
	}
	return out
}
