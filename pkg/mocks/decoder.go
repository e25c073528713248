package mocks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/playcore/pkg/pipeline"
	"github.com/user/playcore/pkg/ports"
)

// DecodeService is a mock implementation of ports.DecodeService.
//
// Sessions turn every sample into a small unit of the track's kind. In
// synchronous mode the output is delivered from inside Decode; with Async
// set it is held until Complete or Flush. Latency holds back that many
// outputs the way real decoders do: each Decode releases the oldest one
// beyond the limit, and Flush releases the rest.
type DecodeService struct {
	mu sync.Mutex

	// Supported lists the decodable codecs. Nil means every codec.
	Supported map[string]bool
	OpenErr   error
	FailOpens int // fail this many Open calls before succeeding
	Async     bool
	Latency   int

	// FailPTS marks samples whose decode reports an error.
	FailPTS map[time.Duration]bool

	Sessions   []*DecodeSession
	OpenCalled int

	released atomic.Int64
	produced atomic.Int64
}

func (m *DecodeService) Supports(codec string, config []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Supported == nil {
		return true
	}
	return m.Supported[codec]
}

func (m *DecodeService) Open(track pipeline.Track, opts pipeline.DecoderOptions, out ports.DecodeOutput) (ports.DecodeSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OpenCalled++
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	if m.FailOpens > 0 {
		m.FailOpens--
		return nil, errors.New("decoder busy")
	}
	s := &DecodeSession{svc: m, Track: track, out: out, async: m.Async, latency: m.Latency}
	m.Sessions = append(m.Sessions, s)
	return s, nil
}

// Released returns how many produced units have been released.
func (m *DecodeService) Released() int { return int(m.released.Load()) }

// Produced returns how many units have been handed to outputs.
func (m *DecodeService) Produced() int { return int(m.produced.Load()) }

// Session returns the most recent session opened for a track.
func (m *DecodeService) Session(trackID uint32) *DecodeSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Sessions) - 1; i >= 0; i-- {
		if m.Sessions[i].Track.ID == trackID {
			return m.Sessions[i]
		}
	}
	return nil
}

// CompleteAll delivers the pending output of every session.
func (m *DecodeService) CompleteAll() int {
	m.mu.Lock()
	sessions := append([]*DecodeSession(nil), m.Sessions...)
	m.mu.Unlock()
	n := 0
	for _, s := range sessions {
		n += s.Complete()
	}
	return n
}

func (m *DecodeService) fails(pts time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.FailPTS[pts]
}

var _ ports.DecodeService = (*DecodeService)(nil)

// DecodeSession is a mock implementation of ports.DecodeSession.
type DecodeSession struct {
	mu      sync.Mutex
	svc     *DecodeService
	out     ports.DecodeOutput
	async   bool
	latency int

	Track   pipeline.Track
	pending []pipeline.EncodedSample

	DecodeErr   error
	Decoded     []pipeline.EncodedSample
	ResetCalled int
	CloseCalled int
}

func (s *DecodeSession) Decode(sample pipeline.EncodedSample) error {
	s.mu.Lock()
	if s.DecodeErr != nil {
		err := s.DecodeErr
		s.mu.Unlock()
		return err
	}
	s.Decoded = append(s.Decoded, sample)
	if s.async {
		s.pending = append(s.pending, sample)
		s.mu.Unlock()
		return nil
	}
	if s.latency > 0 {
		s.pending = append(s.pending, sample)
		var due []pipeline.EncodedSample
		if n := len(s.pending) - s.latency; n > 0 {
			due = append(due, s.pending[:n]...)
			s.pending = s.pending[n:]
		}
		s.mu.Unlock()
		for _, d := range due {
			s.deliver(d)
		}
		return nil
	}
	s.mu.Unlock()
	s.deliver(sample)
	return nil
}

// Complete delivers every pending output and returns how many were delivered.
func (s *DecodeSession) Complete() int {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, sample := range pending {
		s.deliver(sample)
	}
	return len(pending)
}

// Pending returns the number of samples waiting for Complete.
func (s *DecodeSession) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *DecodeSession) deliver(sample pipeline.EncodedSample) {
	if s.svc.fails(sample.PTS) {
		s.out(pipeline.DecodedUnit{}, &pipeline.DecodeError{TrackID: sample.TrackID, PTS: sample.PTS, Err: context.Canceled})
		return
	}
	release := func() { s.svc.released.Add(1) }
	s.svc.produced.Add(1)

	var unit pipeline.DecodedUnit
	if s.Track.Kind == pipeline.KindVideo {
		w, h := s.Track.Width, s.Track.Height
		unit.Picture = pipeline.NewPicture(nil, w, h, sample.PTS, sample.Keyframe, release)
	} else {
		rate, ch := s.Track.SampleRate, s.Track.Channels
		if rate == 0 {
			rate = 48000
		}
		if ch == 0 {
			ch = 2
		}
		frames := int(sample.Duration * time.Duration(rate) / time.Second)
		unit.Audio = pipeline.NewAudioBuffer(make([]float32, frames*ch), sample.PTS, rate, ch, release)
	}
	s.out(unit, nil)
}

func (s *DecodeSession) Flush(ctx context.Context) error {
	s.Complete()
	return ctx.Err()
}

func (s *DecodeSession) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCalled++
	return nil
}

func (s *DecodeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalled++
	return nil
}

var _ ports.DecodeSession = (*DecodeSession)(nil)
