package ports

import (
	"context"

	"github.com/user/playcore/pkg/pipeline"
)

// DecodeOutput receives the result of one submitted sample. Exactly one of
// unit or err is meaningful. It may be called from any goroutine.
type DecodeOutput func(unit pipeline.DecodedUnit, err error)

// DecodeService is a platform decode facility covering one or more codecs.
type DecodeService interface {
	// Supports probes whether the codec with the given configuration blob can be decoded.
	Supports(codec string, config []byte) bool

	// Open configures a session for the track. Results are delivered to out.
	Open(track pipeline.Track, opts pipeline.DecoderOptions, out DecodeOutput) (DecodeSession, error)
}

// DecodeSession decodes the samples of a single track.
//
// Every sample accepted by Decode yields exactly one call to the session's
// DecodeOutput, either a unit or an error, unless the session is Reset or
// Closed first. A sample for which Decode returns an error is not accepted
// and never reaches the output.
//
// Decoders may hold back output until later input arrives. Flush releases
// it.
type DecodeSession interface {
	// Decode submits a sample. It must not block on decode completion.
	Decode(sample pipeline.EncodedSample) error

	// Flush waits until every submitted sample has produced its output.
	Flush(ctx context.Context) error

	// Reset discards in-flight work. The session must not be used afterwards.
	Reset() error

	// Close releases the session.
	Close() error
}

// Transcoder re-encodes a whole source into a broadly supported codec and container pair.
type Transcoder interface {
	// Available reports whether the transcoding engine can run on this host.
	Available() bool

	// Transcode converts the complete source.
	Transcode(ctx context.Context, src []byte) ([]byte, error)
}
