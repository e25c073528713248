package demux

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/playcore/pkg/pipeline"
)

func readAll(t *testing.T, d *Demuxer) []pipeline.EncodedSample {
	t.Helper()
	var out []pipeline.EncodedSample
	for {
		s, err := d.ReadSample()
		if errors.Is(err, io.EOF) || errors.Is(err, pipeline.ErrIncomplete) {
			return out
		}
		require.NoError(t, err)
		out = append(out, s)
	}
}

func TestDetectFormat(t *testing.T) {
	_, err := DetectFormat(nil)
	assert.ErrorIs(t, err, pipeline.ErrEmptyData)

	_, err = DetectFormat([]byte{0, 0, 0, 8, 'f', 't'})
	assert.ErrorIs(t, err, pipeline.ErrTooShort)

	f, err := DetectFormat([]byte{0, 0, 0, 16, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, pipeline.FormatMP4, f)

	f, err = DetectFormat(buildWebM(t, 1))
	require.NoError(t, err)
	assert.Equal(t, pipeline.FormatWebM, f)

	_, err = DetectFormat([]byte("this is not a media file"))
	assert.ErrorIs(t, err, pipeline.ErrUnknownFormat)
}

func TestOpen_FragmentedMP4(t *testing.T) {
	fx := buildFragmentedMP4(t, mp4Options{Seconds: 2})

	d := New(nil)
	info, err := d.Open(fx.data)
	require.NoError(t, err)

	assert.Equal(t, pipeline.FormatMP4, info.Format)
	assert.True(t, info.Fragmented)
	require.Len(t, info.Tracks, 2)

	video := info.Tracks[0]
	assert.Equal(t, pipeline.KindVideo, video.Kind)
	assert.Equal(t, "h264", video.Codec)
	assert.Equal(t, "avc1", video.CodecTag)
	assert.Equal(t, 320, video.Width)
	assert.Equal(t, 240, video.Height)
	assert.NotEmpty(t, video.Config, "avcC payload should be carried")

	audio := info.Tracks[1]
	assert.Equal(t, pipeline.KindAudio, audio.Kind)
	assert.Equal(t, "aac", audio.Codec)
	assert.Equal(t, audioTimescale, audio.SampleRate)

	// No mehd and no trailer yet: 50 frames of 40ms.
	assert.True(t, info.DurationEstimated)
	assert.Equal(t, 2*time.Second, info.Duration)

	info, changed, err := d.Finish()
	require.NoError(t, err)
	assert.True(t, changed, "finishing makes the duration authoritative")
	assert.False(t, info.DurationEstimated)
	assert.Equal(t, 2*time.Second, info.Duration)
}

func TestReadSample_InterleavesInDecodeOrder(t *testing.T) {
	fx := buildFragmentedMP4(t, mp4Options{Seconds: 2})
	d := New(nil)
	_, err := d.Open(fx.data)
	require.NoError(t, err)
	_, _, err = d.Finish()
	require.NoError(t, err)

	samples := readAll(t, d)
	var video, audio int
	var last time.Duration
	lastByTrack := map[uint32]time.Duration{}
	for i, s := range samples {
		assert.GreaterOrEqual(t, s.DTS, last, "sample %d out of decode order", i)
		last = s.DTS
		assert.GreaterOrEqual(t, s.DTS, lastByTrack[s.TrackID])
		lastByTrack[s.TrackID] = s.DTS
		if s.Kind == pipeline.KindVideo {
			video++
		} else {
			audio++
		}
	}
	assert.Equal(t, 2*videoFPS, video)
	assert.Equal(t, 2*audioTimescale/audioFrame, audio)

	_, err = d.ReadSample()
	assert.ErrorIs(t, err, io.EOF)
}

func TestKeyframesFromSampleFlags(t *testing.T) {
	fx := buildFragmentedMP4(t, mp4Options{Seconds: 1, NoAudio: true})
	d := New(nil)
	_, err := d.Open(fx.data)
	require.NoError(t, err)

	samples := readAll(t, d)
	require.Len(t, samples, videoFPS)
	assert.True(t, samples[0].Keyframe)
	for _, s := range samples[1:] {
		assert.False(t, s.Keyframe)
	}
	assert.Equal(t, 40*time.Millisecond, samples[1].PTS)
	assert.Equal(t, 40*time.Millisecond, samples[1].Duration)
}

func TestAppend_ProgressiveArrival(t *testing.T) {
	fx := buildFragmentedMP4(t, mp4Options{Seconds: 3})

	// Header plus the start of the first moof.
	cut := fx.headerLen + 10
	d := New(nil)
	info, err := d.Open(append([]byte(nil), fx.data[:cut]...))
	require.NoError(t, err)
	assert.Len(t, info.Tracks, 2)
	assert.Equal(t, time.Duration(0), info.Duration)

	_, err = d.ReadSample()
	assert.ErrorIs(t, err, pipeline.ErrIncomplete)

	info, changed, err := d.Append(fx.data[cut:fx.fragEnds[0]])
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, info.DurationEstimated)
	assert.Equal(t, time.Second, info.Duration)

	first := readAll(t, d)
	assert.Len(t, first, videoFPS+audioTimescale/audioFrame)

	info, changed, err = d.Append(fx.data[fx.fragEnds[0]:])
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 3*time.Second, info.Duration)

	rest := readAll(t, d)
	assert.Len(t, rest, 2*(videoFPS+audioTimescale/audioFrame))
}

func TestAppend_TrailerMakesDurationAuthoritative(t *testing.T) {
	fx := buildFragmentedMP4(t, mp4Options{Seconds: 2, Mfra: true})
	d := New(nil)
	info, err := d.Open(fx.data)
	require.NoError(t, err)
	assert.False(t, info.DurationEstimated)
	assert.True(t, d.Complete())
	assert.Equal(t, 2*time.Second, info.Duration)
}

func TestOpen_IncompleteHeader(t *testing.T) {
	fx := buildFragmentedMP4(t, mp4Options{Seconds: 1})

	ready, err := HeaderReady(fx.data[:fx.headerLen-10])
	require.NoError(t, err)
	assert.False(t, ready)

	d := New(nil)
	_, err = d.Open(fx.data[:fx.headerLen-10])
	assert.ErrorIs(t, err, pipeline.ErrIncomplete)
	assert.False(t, pipeline.IsFormatError(err))

	ready, err = HeaderReady(fx.data[:fx.headerLen])
	require.NoError(t, err)
	assert.True(t, ready)

	_, err = d.Open(fx.data)
	require.NoError(t, err, "open may be retried with a longer prefix")
}

func TestOpen_OmitsIncompleteTrack(t *testing.T) {
	fx := buildFragmentedMP4(t, mp4Options{Seconds: 1, DropAudio: true})
	d := New(nil)
	info, err := d.Open(fx.data)
	require.NoError(t, err)
	require.Len(t, info.Tracks, 1)
	assert.Equal(t, pipeline.KindVideo, info.Tracks[0].Kind)
}

func TestOpen_MalformedHeader(t *testing.T) {
	data := []byte{0, 0, 0, 3, 'f', 't', 'y', 'p', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	d := New(nil)
	_, err := d.Open(data)
	require.Error(t, err)
	assert.True(t, pipeline.IsFormatError(err))

	_, err = New(nil).Open(nil)
	assert.ErrorIs(t, err, pipeline.ErrEmptyData)
	assert.True(t, pipeline.IsFormatError(err))
}

func TestSeek_LandsOnPrecedingKeyframe(t *testing.T) {
	fx := buildFragmentedMP4(t, mp4Options{Seconds: 3})
	d := New(nil)
	_, err := d.Open(fx.data)
	require.NoError(t, err)
	_, _, err = d.Finish()
	require.NoError(t, err)

	reached, err := d.Seek(1500 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, time.Second, reached)

	s, err := d.ReadSample()
	require.NoError(t, err)
	assert.Equal(t, pipeline.KindVideo, s.Kind)
	assert.True(t, s.Keyframe)
	assert.Equal(t, time.Second, s.PTS)

	for _, s := range readAll(t, d) {
		assert.GreaterOrEqual(t, s.PTS, time.Second)
	}

	reached, err = d.Seek(-time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), reached)

	reached, err = d.Seek(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, reached)
}

func TestSelectTrack(t *testing.T) {
	fx := buildFragmentedMP4(t, mp4Options{Seconds: 1})
	d := New(nil)
	_, err := d.Open(fx.data)
	require.NoError(t, err)

	require.Len(t, d.Selected(), 2)
	assert.ErrorIs(t, d.SelectTrack(99), pipeline.ErrNoTrack)
	require.NoError(t, d.SelectTrack(2))
	assert.Equal(t, uint32(2), d.Selected()[1].ID)
}

func TestClose_Idempotent(t *testing.T) {
	fx := buildFragmentedMP4(t, mp4Options{Seconds: 1})
	d := New(nil)
	_, err := d.Open(fx.data)
	require.NoError(t, err)

	assert.NoError(t, d.Close())
	assert.NoError(t, d.Close())

	_, err = d.ReadSample()
	assert.ErrorIs(t, err, pipeline.ErrDisposed)
}

func TestOpen_WebM(t *testing.T) {
	data := buildWebM(t, 2)
	d := New(nil)
	info, err := d.Open(data)
	require.NoError(t, err)

	assert.Equal(t, pipeline.FormatWebM, info.Format)
	require.Len(t, info.Tracks, 2)
	assert.Equal(t, "vp8", info.Tracks[0].Codec)
	assert.Equal(t, 640, info.Tracks[0].Width)
	assert.Equal(t, "opus", info.Tracks[1].Codec)
	assert.Equal(t, 2, info.Tracks[1].Channels)
	assert.True(t, info.DurationEstimated, "writer does not store Info.Duration")

	info, _, err = d.Finish()
	require.NoError(t, err)
	assert.False(t, info.DurationEstimated)
	assert.Equal(t, 2*time.Second, info.Duration)

	reached, err := d.Seek(1200 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, time.Second, reached)

	s, err := d.ReadSample()
	require.NoError(t, err)
	assert.True(t, s.Keyframe)
	assert.Equal(t, uint32(1), s.TrackID)
}
