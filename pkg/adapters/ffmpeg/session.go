package ffmpeg

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"slices"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/user/playcore/pkg/pipeline"
	"github.com/user/playcore/pkg/ports"
)

var (
	// ErrQueueFull is returned by Decode when ffmpeg falls behind.
	ErrQueueFull = errors.New("ffmpeg: decode queue full")

	// ErrNoOutput is reported for samples that ffmpeg consumed without
	// producing a frame.
	ErrNoOutput = errors.New("ffmpeg: no output for sample")
)

// Session is a ports.DecodeSession backed by a long-running ffmpeg process.
// The process is started lazily and replaced after Flush or Reset.
type Session struct {
	ffmpegPath string
	decoder    string
	threads    int
	track      pipeline.Track
	framer     framer
	out        ports.DecodeOutput
	queueSize  int
	log        ports.Logger

	mu     sync.Mutex
	proc   *process
	closed bool
}

type pendingSample struct {
	seq    uint64
	sample pipeline.EncodedSample
}

type process struct {
	s      *Session
	cmd    *exec.Cmd
	cancel context.CancelFunc
	in     chan pendingSample
	done   chan struct{}
	stderr bytes.Buffer

	mu       sync.Mutex
	pending  []pendingSample
	seq      uint64
	detached bool
	pool     sync.Pool
}

func (s *Session) start() error {
	if s.track.Kind == pipeline.KindVideo && (s.track.Width <= 0 || s.track.Height <= 0) {
		return fmt.Errorf("track %d: unknown picture size", s.track.ID)
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &process{
		s:      s,
		cancel: cancel,
		in:     make(chan pendingSample, s.queueSize),
		done:   make(chan struct{}),
	}
	frameSize := s.track.Width * s.track.Height * 4
	p.pool.New = func() any { return make([]byte, frameSize) }

	p.cmd = exec.CommandContext(ctx, s.ffmpegPath, s.args()...)
	p.cmd.Stderr = &p.stderr
	stdin, err := p.cmd.StdinPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	if err := p.cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	var g errgroup.Group
	g.Go(func() error { return p.write(stdin) })
	g.Go(func() error {
		if s.track.Kind == pipeline.KindVideo {
			return p.readPictures(stdout)
		}
		return p.readAudio(stdout)
	})
	go func() {
		err := g.Wait()
		if werr := p.cmd.Wait(); err == nil && werr != nil && ctx.Err() == nil {
			err = fmt.Errorf("ffmpeg exited: %w\nstderr: %s", werr, p.stderr.String())
		}
		cancel()
		p.failRemaining(err)
		close(p.done)
	}()

	s.proc = p
	return nil
}

func (s *Session) args() []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	if s.threads > 0 {
		args = append(args, "-threads", strconv.Itoa(s.threads))
	}
	args = append(args,
		"-f", s.framer.inputFormat(),
		"-c:"+s.streamType(), s.decoder,
		"-i", "pipe:0",
	)
	if s.track.Kind == pipeline.KindVideo {
		return append(args,
			"-fps_mode", "passthrough",
			"-s", fmt.Sprintf("%dx%d", s.track.Width, s.track.Height),
			"-pix_fmt", "rgba",
			"-f", "rawvideo",
			"pipe:1",
		)
	}
	rate, ch := s.audioFormat()
	return append(args,
		"-ar", strconv.Itoa(rate),
		"-ac", strconv.Itoa(ch),
		"-f", "f32le",
		"pipe:1",
	)
}

func (s *Session) streamType() string {
	if s.track.Kind == pipeline.KindVideo {
		return "v"
	}
	return "a"
}

func (s *Session) audioFormat() (rate, channels int) {
	rate, channels = s.track.SampleRate, s.track.Channels
	if rate <= 0 {
		rate = 48000
	}
	if channels <= 0 {
		channels = 2
	}
	return rate, channels
}

// Decode queues a sample for the ffmpeg process.
func (s *Session) Decode(sample pipeline.EncodedSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return pipeline.ErrDisposed
	}
	if s.proc == nil {
		if err := s.start(); err != nil {
			return err
		}
	}
	p := s.proc

	ps := p.track(sample)
	select {
	case p.in <- ps:
		return nil
	default:
		if !p.untrack(ps.seq) {
			// A reader or a dying process settled it already.
			return nil
		}
		return ErrQueueFull
	}
}

// Flush closes the input of the running process and waits until ffmpeg has
// emitted everything. The next Decode starts a fresh process.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	p := s.proc
	s.proc = nil
	if p != nil {
		close(p.in)
	}
	s.mu.Unlock()
	if p == nil {
		return nil
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		p.cancel()
		<-p.done
		return ctx.Err()
	}
}

// Reset stops the process. Pending samples produce no output.
func (s *Session) Reset() error {
	s.mu.Lock()
	p := s.proc
	s.proc = nil
	if p != nil {
		close(p.in)
	}
	s.mu.Unlock()
	if p != nil {
		p.detach()
	}
	return nil
}

// Close stops the process and waits for it to exit.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	p := s.proc
	s.proc = nil
	if p != nil {
		close(p.in)
	}
	s.mu.Unlock()
	if p != nil {
		p.detach()
		<-p.done
	}
	return nil
}

func (p *process) track(sample pipeline.EncodedSample) pendingSample {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	ps := pendingSample{seq: p.seq, sample: sample}
	p.pending = append(p.pending, ps)
	return ps
}

func (p *process) untrack(seq uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := slices.IndexFunc(p.pending, func(ps pendingSample) bool { return ps.seq == seq })
	if i < 0 {
		return false
	}
	p.pending = slices.Delete(p.pending, i, i+1)
	return true
}

// detach suppresses further output and kills the process.
func (p *process) detach() {
	p.mu.Lock()
	p.detached = true
	p.pending = nil
	p.mu.Unlock()
	p.cancel()
}

func (p *process) write(stdin io.WriteCloser) error {
	defer stdin.Close()
	if hdr := p.s.framer.header(); len(hdr) > 0 {
		if _, err := stdin.Write(hdr); err != nil {
			return fmt.Errorf("failed to write stream header: %w", err)
		}
	}
	for ps := range p.in {
		data, err := p.s.framer.frame(ps.sample)
		if err != nil {
			p.failOne(ps, err)
			continue
		}
		if _, err := stdin.Write(data); err != nil {
			p.failOne(ps, err)
			p.cancel()
			for rest := range p.in {
				p.failOne(rest, err)
			}
			return fmt.Errorf("failed to write sample: %w", err)
		}
	}
	return nil
}

// takeNext removes the sample whose output comes next. Video decoders emit
// pictures in presentation order; audio comes out in submission order.
func (p *process) takeNext() (pipeline.EncodedSample, bool) {
	if len(p.pending) == 0 {
		return pipeline.EncodedSample{}, false
	}
	i := 0
	if p.s.track.Kind == pipeline.KindVideo {
		for j, ps := range p.pending {
			if ps.sample.PTS < p.pending[i].sample.PTS {
				i = j
			}
		}
	}
	ps := p.pending[i]
	p.pending = slices.Delete(p.pending, i, i+1)
	return ps.sample, true
}

func (p *process) readPictures(stdout io.Reader) error {
	w, h := p.s.track.Width, p.s.track.Height
	for {
		buf := p.pool.Get().([]byte)
		if _, err := io.ReadFull(stdout, buf); err != nil {
			p.pool.Put(buf)
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return fmt.Errorf("failed to read picture: %w", err)
		}

		p.mu.Lock()
		sample, ok := p.takeNext()
		if p.detached || !ok {
			p.mu.Unlock()
			p.pool.Put(buf)
			continue
		}
		pic := pipeline.NewPicture(buf, w, h, sample.PTS, sample.Keyframe, func() { p.pool.Put(buf) })
		p.s.out(pipeline.DecodedUnit{Picture: pic}, nil)
		p.mu.Unlock()
	}
}

func (p *process) readAudio(stdout io.Reader) error {
	rate, ch := p.s.audioFormat()
	for {
		p.mu.Lock()
		sample, ok := p.peekAudio()
		p.mu.Unlock()

		frames := 1024
		if ok && sample.Duration > 0 {
			frames = int(math.Round(sample.Duration.Seconds() * float64(rate)))
		}
		raw := make([]byte, frames*ch*4)
		n, err := io.ReadFull(stdout, raw)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read audio: %w", err)
		}
		samples := make([]float32, n/4)
		for i := range samples {
			samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}

		p.mu.Lock()
		sample, ok = p.takeNext()
		if !p.detached && ok {
			buf := pipeline.NewAudioBuffer(samples, sample.PTS, rate, ch, nil)
			p.s.out(pipeline.DecodedUnit{Audio: buf}, nil)
		}
		p.mu.Unlock()
		if err != nil {
			return nil
		}
	}
}

func (p *process) peekAudio() (pipeline.EncodedSample, bool) {
	if len(p.pending) == 0 {
		return pipeline.EncodedSample{}, false
	}
	return p.pending[0].sample, true
}

func (p *process) failOne(ps pendingSample, err error) {
	if !p.untrack(ps.seq) {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.detached {
		return
	}
	p.s.out(pipeline.DecodedUnit{}, &pipeline.DecodeError{TrackID: ps.sample.TrackID, PTS: ps.sample.PTS, Err: err})
}

// failRemaining reports every sample that never produced output.
func (p *process) failRemaining(cause error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.detached {
		return
	}
	if cause == nil {
		cause = ErrNoOutput
	}
	for _, ps := range p.pending {
		p.s.out(pipeline.DecodedUnit{}, &pipeline.DecodeError{TrackID: ps.sample.TrackID, PTS: ps.sample.PTS, Err: cause})
	}
	if n := len(p.pending); n > 0 {
		p.s.log.Debug("ffmpeg finished with %d samples without output", n)
	}
	p.pending = nil
}

var _ ports.DecodeSession = (*Session)(nil)

