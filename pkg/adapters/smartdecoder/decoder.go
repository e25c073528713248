// Package smartdecoder routes each codec to the first decode backend that
// supports it.
package smartdecoder

import (
	"errors"
	"fmt"
	"sync"

	"github.com/samber/lo"

	"github.com/user/playcore/pkg/pipeline"
	"github.com/user/playcore/pkg/ports"
)

// Backend is one named decode service.
type Backend struct {
	Name    string
	Service ports.DecodeService
}

// Choice records which backend serves a codec.
type Choice struct {
	Codec   string
	Backend string
}

// ErrNoDecoderAvailable is returned when no backend handles a codec.
var ErrNoDecoderAvailable = errors.New("smartdecoder: no decoder available")

// Decoder implements ports.DecodeService over an ordered list of backends.
//
// The selection flow:
//   - Backends are asked in order; the first whose Supports returns true wins
//   - When Open on the chosen backend fails, later supporting backends are tried
type Decoder struct {
	backends []Backend
	log      ports.Logger

	mu      sync.Mutex
	choices map[string]string
}

// New creates a Decoder. Earlier backends take priority.
func New(log ports.Logger, backends ...Backend) *Decoder {
	return &Decoder{backends: backends, log: log, choices: make(map[string]string)}
}

// Supports reports whether any backend can decode the codec.
func (d *Decoder) Supports(codec string, config []byte) bool {
	return lo.SomeBy(d.backends, func(b Backend) bool {
		return b.Service.Supports(codec, config)
	})
}

// Open opens a session on the first supporting backend that accepts the track.
func (d *Decoder) Open(track pipeline.Track, opts pipeline.DecoderOptions, out ports.DecodeOutput) (ports.DecodeSession, error) {
	candidates := lo.Filter(d.backends, func(b Backend, _ int) bool {
		return b.Service.Supports(track.Codec, track.Config)
	})
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoDecoderAvailable, track.Codec)
	}

	var errs []error
	for _, b := range candidates {
		sess, err := b.Service.Open(track, opts, out)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Name, err))
			if d.log != nil {
				d.log.Warn("Decoder backend %s failed for %s: %v", b.Name, track.Codec, err)
			}
			continue
		}
		d.mu.Lock()
		d.choices[track.Codec] = b.Name
		d.mu.Unlock()
		return sess, nil
	}
	return nil, errors.Join(errs...)
}

// Choices returns the backend used for each codec opened so far.
func (d *Decoder) Choices() []Choice {
	d.mu.Lock()
	defer d.mu.Unlock()
	return lo.MapToSlice(d.choices, func(codec, name string) Choice {
		return Choice{Codec: codec, Backend: name}
	})
}

var _ ports.DecodeService = (*Decoder)(nil)
