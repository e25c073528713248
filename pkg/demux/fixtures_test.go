package demux

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/user/playcore/pkg/mocks"
)

const (
	videoFPS       = mocks.VideoFPS
	audioTimescale = mocks.AudioTimescale
	audioFrame     = mocks.AudioFrame
)

type mp4Fixture struct {
	data      []byte
	headerLen int
	fragEnds  []int
}

type mp4Options = mocks.MP4Options

func buildFragmentedMP4(t *testing.T, opts mp4Options) mp4Fixture {
	t.Helper()
	fx, err := mocks.BuildFragmentedMP4(opts)
	require.NoError(t, err)
	return mp4Fixture{data: fx.Data, headerLen: fx.HeaderLen, fragEnds: fx.SecondEnd}
}

func buildWebM(t *testing.T, seconds int) []byte {
	t.Helper()
	data, err := mocks.BuildWebM(seconds)
	require.NoError(t, err)
	return data
}

type progressiveOptions = mocks.ProgressiveOptions

func buildProgressiveMP4(t *testing.T, opts progressiveOptions) mocks.ProgressiveFixture {
	t.Helper()
	fx, err := mocks.BuildProgressiveMP4(opts)
	require.NoError(t, err)
	return fx
}

func buildWebMClusters(t *testing.T, clusters []mocks.WebMCluster, sized bool) []byte {
	t.Helper()
	data, err := mocks.BuildWebMClusters(clusters, sized)
	require.NoError(t, err)
	return data
}
